// Package mocks provides mock implementations for testing the catchment pipeline.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
// This creates MockJobRepository with methods for all JobRepository interface methods:
// Create, GetByID, GetContent, GetArtifact, ClaimNext, Claim, WaitForNotification,
// Complete, List, Stats, OldestProcessingAge, RecordDownload, RequeueStuck
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/locushq/catchment-api/internal/core JobRepository

// Generate mock for GeoClient interface from internal/core package.
// This creates MockGeoClient with the Enrich method.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=geo_client_mock.go github.com/locushq/catchment-api/internal/core GeoClient

// Generate mock for QuotaKeeper interface from internal/core package.
// This creates MockQuotaKeeper with the Remaining and Consume methods.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=quota_keeper_mock.go github.com/locushq/catchment-api/internal/core QuotaKeeper

// Generate mock for StatusSink interface from internal/core package.
// This creates MockStatusSink with the Publish method.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=status_sink_mock.go github.com/locushq/catchment-api/internal/core StatusSink

// Generate mock for TokenVerifier interface from internal/ports package.
// This creates MockTokenVerifier with the Verify method.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=token_verifier_mock.go github.com/locushq/catchment-api/internal/ports TokenVerifier
