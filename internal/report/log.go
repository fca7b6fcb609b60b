package report

import (
	"context"

	"go.uber.org/zap"
)

// LogReporter writes run progress to a zap logger.
type LogReporter struct {
	logger *zap.Logger
}

// NewLogReporter creates a log sink.
func NewLogReporter(logger *zap.Logger) *LogReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogReporter{logger: logger}
}

func (l *LogReporter) StartRun(ctx context.Context, run *Run) error {
	l.logger.Info("Run started", zap.String("run_id", string(run.ID)))
	return nil
}

func (l *LogReporter) StartTest(ctx context.Context, t *Test) error {
	l.logger.Info("Scenario started",
		zap.String("scenario", t.Name),
		zap.Strings("tags", t.Tags),
		zap.String("test_case_id", t.TestCaseID))
	return nil
}

func (l *LogReporter) Log(ctx context.Context, t *Test, ev Event) error {
	fields := []zap.Field{zap.String("scenario", t.Name), zap.String("level", string(ev.Level))}
	if ev.Level == LevelFail {
		l.logger.Error(ev.Message, fields...)
	} else {
		l.logger.Info(ev.Message, fields...)
	}
	return nil
}

func (l *LogReporter) EndTest(ctx context.Context, t *Test) error {
	l.logger.Info("Scenario finished",
		zap.String("scenario", t.Name),
		zap.String("status", string(t.Status())),
		zap.Duration("duration", t.FinishedAt().Sub(t.StartedAt)))
	return nil
}

func (l *LogReporter) FinishRun(ctx context.Context, s *Summary) error {
	for _, c := range s.Cases {
		l.logger.Info("Test case outcome",
			zap.String("test_case_id", c.TestCaseID),
			zap.String("outcome", c.Outcome),
			zap.Int("scenarios", c.Scenarios),
			zap.Int("failures", c.Failures))
	}
	l.logger.Info("Run finished",
		zap.String("run_id", string(s.RunID)),
		zap.Int("passed", s.Passed),
		zap.Int("failed", s.Failed))
	return nil
}
