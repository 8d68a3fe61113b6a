package repositories

import "context"

// Repository aggregates all repositories of the mocktest service
type Repository interface {
	// Question bank (read-only)
	Test() TestRepository

	// Attempt domain
	Attempt() AttemptRepository
	Answer() AnswerRepository

	// Aggregates and side records
	Rank() RankRepository
	Report() ReportRepository
	Enrollment() EnrollmentRepository

	// User directory (external, read-only)
	User() UserRepository

	// WithTransaction runs fn with a Repository bound to one database transaction.
	// Returning an error rolls back.
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
