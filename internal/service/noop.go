package service

import (
	"context"
	"time"

	"github.com/segyhp/library-engine/internal/domain"
)

type noopCache struct{}

func (noopCache) Get(context.Context, int64, time.Time) (*domain.LoanStats, int64, error) {
	return nil, 0, nil
}

func (noopCache) Set(context.Context, int64, time.Time, int64, *domain.LoanStats) error { return nil }

func (noopCache) Invalidate(context.Context, int64) error { return nil }

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, *domain.Notification) error { return nil }

type noopRecorder struct{}

func (noopRecorder) LoanIssued()         {}
func (noopRecorder) LoanRejected(string) {}
func (noopRecorder) LoanReturned(bool)   {}
func (noopRecorder) ReminderSent(string) {}
