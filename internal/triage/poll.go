package triage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// WaitForJob polls the status endpoint until the job completes, fails, or
// the attempt budget runs out. Exactly MaxAttempts queries are made at most.
// A failed query, including a per-request timeout, is retried, except on the
// last attempt where its error is returned. A server-reported error or the
// end of ctx stops polling at once.
func (c *Client) WaitForJob(ctx context.Context, jobID string) (Result, error) {
	log := c.log.With(zap.String("job_id", jobID))
	start := time.Now()

	if cached, ok, err := c.cache.Get(ctx, jobID); err != nil {
		log.Warn("status cache lookup failed", zap.Error(err))
	} else if ok {
		log.Debug("job status served from cache", zap.String("state", string(cached.State)))
		return terminalOutcome(cached)
	}

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		status, err := c.JobStatus(ctx, jobID)
		switch {
		case err != nil && ctx.Err() != nil:
			return Result{}, err
		case err != nil && KindOf(err) == KindValidation:
			return Result{}, err
		case err != nil:
			c.obs.Polled("query_error")
			if attempt == c.maxAttempts {
				c.obs.JobDone("query_error", time.Since(start))
				return Result{}, err
			}
			log.Debug("status query failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		default:
			c.obs.Polled(string(status.State))
			if status.State.Terminal() {
				if err := c.cache.Put(ctx, status); err != nil {
					log.Warn("status cache store failed", zap.Error(err))
				}
				res, err := terminalOutcome(status)
				c.obs.JobDone(string(status.State), time.Since(start))
				log.Info("job finished", zap.String("state", string(status.State)), zap.Int("attempts", attempt))
				return res, err
			}
		}

		if attempt == c.maxAttempts {
			break
		}
		if err := sleep(ctx, c.pollInterval); err != nil {
			return Result{}, err
		}
	}

	c.obs.JobDone("timeout", time.Since(start))
	log.Warn("job did not finish in time", zap.Int("attempts", c.maxAttempts))

	return Result{}, &Error{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("job %s not finished after %d attempts", jobID, c.maxAttempts),
	}
}

// WaitForJobs resolves jobs one after another, in order. A failed job is
// replaced by a synthetic error record and the remaining jobs still run.
// Only cancellation of ctx aborts the loop.
func (c *Client) WaitForJobs(ctx context.Context, jobIDs []string) (Aggregate, error) {
	results := make([]Result, 0, len(jobIDs))

	for _, id := range jobIDs {
		res, err := c.WaitForJob(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return Aggregate{}, err
			}
			c.log.Warn("job failed inside batch", zap.String("job_id", id), zap.Error(err))
			res = SyntheticError(err)
		}
		results = append(results, res)
	}

	return Aggregate{
		TotalEmails: len(jobIDs),
		Results:     results,
		Message:     fmt.Sprintf("✅ Análise concluída para %d email(s)", len(jobIDs)),
	}, nil
}

// Resolve turns a jobs response into a final one by waiting on its jobs.
// Other kinds are returned unchanged.
func (c *Client) Resolve(ctx context.Context, resp Response) (Response, error) {
	if resp.Kind != KindJobs {
		return resp, nil
	}

	if len(resp.JobIDs) == 1 {
		res, err := c.WaitForJob(ctx, resp.JobIDs[0])
		if err != nil {
			return Response{}, err
		}
		return Response{Kind: KindSingle, Result: &res, Raw: resp.Raw}, nil
	}

	agg, err := c.WaitForJobs(ctx, resp.JobIDs)
	if err != nil {
		return Response{}, err
	}
	return Response{Kind: KindBatch, Batch: &agg, Message: agg.Message, Raw: resp.Raw}, nil
}

func terminalOutcome(s JobStatus) (Result, error) {
	if s.State == JobError {
		msg := firstNonEmpty(s.Error, s.Message, "job failed")
		return Result{}, &Error{Kind: KindServerReported, Message: msg}
	}

	if s.Result == nil {
		return Result{Summary: s.Message}, nil
	}
	return *s.Result, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
