// -----------------------------------------------------------------------
// Package validation enforces request shape and payload size caps
// -----------------------------------------------------------------------

package validation

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/common"
	"github.com/ternarybob/runpack/internal/models"
)

// Service validates API request payloads. Struct shape is checked with
// validator tags; byte-size caps are checked explicitly so the error
// message can name the limit that was exceeded. All caps are inclusive:
// a payload of exactly the limit is accepted.
type Service struct {
	validate *validator.Validate
	limits   common.LimitsConfig
	logger   arbor.ILogger
}

// NewService creates a new validation service
func NewService(logger arbor.ILogger, limits common.LimitsConfig) *Service {
	return &Service{
		validate: validator.New(),
		limits:   limits,
		logger:   logger,
	}
}

// ValidateSubmit checks a submit/check request: non-empty job_type and
// input_params within the input cap.
func (s *Service) ValidateSubmit(req *models.SubmitJobRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("job_type is required: %w", err)
	}
	if len(req.InputParams) > s.limits.MaxInputBytes {
		return fmt.Errorf("input_params exceeds maximum size of %d bytes", s.limits.MaxInputBytes)
	}
	return nil
}

// ValidateRegister checks a runner registration request.
func (s *Service) ValidateRegister(req *models.RegisterRunnerRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("name and at least one capability are required: %w", err)
	}
	return nil
}

// ValidateHeartbeat checks console output size on a heartbeat.
func (s *Service) ValidateHeartbeat(req *models.HeartbeatRequest) error {
	return s.checkConsole(req.ConsoleOutput)
}

// ValidateComplete checks output and console sizes on a completion.
func (s *Service) ValidateComplete(req *models.CompleteRequest) error {
	if len(req.OutputData) > s.limits.MaxOutputBytes {
		return fmt.Errorf("output_data exceeds maximum size of %d bytes", s.limits.MaxOutputBytes)
	}
	return s.checkConsole(req.ConsoleOutput)
}

// ValidateFail checks error message and console sizes on a failure report.
func (s *Service) ValidateFail(req *models.FailRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("error_message is required: %w", err)
	}
	if len(req.ErrorMessage) > s.limits.MaxErrorBytes {
		return fmt.Errorf("error_message exceeds maximum size of %d bytes", s.limits.MaxErrorBytes)
	}
	return s.checkConsole(req.ConsoleOutput)
}

// ValidateBatchDelete checks a batch delete request.
func (s *Service) ValidateBatchDelete(req *models.BatchDeleteRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("job_ids must contain at least one id: %w", err)
	}
	return nil
}

func (s *Service) checkConsole(console string) error {
	if len(console) > s.limits.MaxConsoleBytes {
		return fmt.Errorf("console_output exceeds maximum size of %d bytes", s.limits.MaxConsoleBytes)
	}
	return nil
}
