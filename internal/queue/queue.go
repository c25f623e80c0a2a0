// Package queue carries refresh jobs from the dispatcher to workers.
package queue

import "content_refresher/internal/domain"

// Delivery is one received job. Exactly one of Ack or Nack must be called.
type Delivery struct {
	Job  domain.RefreshJob
	Ack  func() error
	Nack func(requeue bool) error
}
