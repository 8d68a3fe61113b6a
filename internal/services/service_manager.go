package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SAP-F-2025/mocktest-service/internal/events"
	"github.com/SAP-F-2025/mocktest-service/internal/grading"
	"github.com/SAP-F-2025/mocktest-service/internal/repositories"
	"github.com/SAP-F-2025/mocktest-service/internal/timer"
	"github.com/SAP-F-2025/mocktest-service/internal/validator"
)

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	// Attempt engine
	GracePeriod time.Duration
	Clock       timer.Clock

	// Collaborators; nil falls back to defaults
	Entitlement EntitlementChecker
	Publisher   events.EventPublisher
	Reviews     ReviewSink

	DefaultTimeout time.Duration
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	// Dependencies
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	config    ServiceManagerConfig
	registry  *grading.Registry

	// Service instances
	attemptService AttemptService
	rankService    RankService
	reportService  ReportService

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, config ServiceManagerConfig) ServiceManager {
	return &serviceManager{
		repo:      repo,
		logger:    logger,
		validator: validator,
		config:    config,
	}
}

// NewDefaultServiceManager creates a service manager with default configuration
func NewDefaultServiceManager(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator) ServiceManager {
	return NewServiceManager(repo, logger, validator, ServiceManagerConfig{
		GracePeriod:    timer.DefaultGracePeriod,
		DefaultTimeout: 30 * time.Second,
	})
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	if err := sm.config.Validate(); err != nil {
		return err
	}

	sm.initializeServices()

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

func (sm *serviceManager) initializeServices() {
	sm.registry = grading.NewRegistry()

	clock := sm.config.Clock
	if clock == nil {
		clock = timer.SystemClock()
	}

	sm.rankService = NewRankService(sm.repo, sm.logger)
	sm.logger.Info("Rank service initialized")

	reviews := sm.config.Reviews
	if reviews == nil && sm.config.Publisher != nil {
		reviews = NewEventReviewSink(sm.config.Publisher)
	}

	sm.attemptService = NewAttemptService(AttemptDependencies{
		Repo:        sm.repo,
		Registry:    sm.registry,
		Timer:       timer.NewAuthority(clock, sm.config.GracePeriod),
		Entitlement: sm.config.Entitlement,
		Publisher:   sm.config.Publisher,
		Ranks:       sm.rankService,
		Reviews:     reviews,
		Logger:      sm.logger,
		Validator:   sm.validator,
	})
	sm.logger.Info("Attempt service initialized", "grace_period", sm.config.GracePeriod)

	sm.reportService = NewReportService(sm.repo, sm.logger, sm.validator)
	sm.logger.Info("Report service initialized")
}

// Service getters
func (sm *serviceManager) Attempt() AttemptService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.attemptService
}

func (sm *serviceManager) Rank() RankService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.rankService
}

func (sm *serviceManager) Report() ReportService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.reportService
}

func (sm *serviceManager) Grading() *grading.Registry {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.registry
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}

	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if sm.config.DefaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sm.config.DefaultTimeout)
		defer cancel()
	}

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}

	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if repoManager, ok := sm.repo.(repositories.RepositoryManager); ok {
		if err := repoManager.Shutdown(ctx); err != nil {
			sm.logger.Error("Failed to shutdown repository manager", "error", err)
		}
	} else if err := sm.repo.Close(); err != nil {
		sm.logger.Error("Failed to close repository", "error", err)
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")

	return nil
}

// ===== CONFIGURATION VALIDATION =====

// Validate validates the service manager configuration
func (config *ServiceManagerConfig) Validate() error {
	var errors []string

	if config.GracePeriod < 0 {
		errors = append(errors, "grace period cannot be negative")
	}

	if config.DefaultTimeout < 0 {
		errors = append(errors, "default timeout cannot be negative")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}
