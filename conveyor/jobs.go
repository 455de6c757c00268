package conveyor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/john/conveyor_client/job"
	"github.com/john/conveyor_client/printer"
)

var _ printer.JobManager = (*Client)(nil)

// Print asks the daemon to print req.InputFile on req.Printer.
func (c *Client) Print(ctx context.Context, req printer.PrintRequest) (*job.Job, error) {
	return c.dispatch(ctx, job.KindPrint, req.Printer, req)
}

// PrintToFile asks the daemon to write a machine-ready file.
func (c *Client) PrintToFile(ctx context.Context, req printer.PrintToFileRequest) (*job.Job, error) {
	return c.dispatch(ctx, job.KindPrintToFile, req.Printer, req)
}

// Slice asks the daemon to slice req.InputFile.
func (c *Client) Slice(ctx context.Context, req printer.SliceRequest) (*job.Job, error) {
	return c.dispatch(ctx, job.KindSlice, req.Printer, req)
}

// dispatch sends one job-creation call. The method name is the job kind.
// Errors from the call itself are returned unwrapped.
func (c *Client) dispatch(ctx context.Context, kind job.Kind, printerName string, params interface{}) (*job.Job, error) {
	var raw json.RawMessage
	if err := c.Call(ctx, string(kind), params, &raw); err != nil {
		jobsDispatchedTotal.WithLabelValues(string(kind), "error").Inc()
		c.log.Warn().Err(err).Str("kind", string(kind)).Str("printer", printerName).Msg("job dispatch failed")
		return nil, err
	}

	d, err := job.ParseDocument(raw)
	if err != nil {
		jobsDispatchedTotal.WithLabelValues(string(kind), "bad_response").Inc()
		return nil, fmt.Errorf("%s response: %w", kind, err)
	}
	if d.Printer == "" {
		d.Printer = printerName
	}
	if d.Kind == "" {
		d.Kind = kind
	}

	j, err := c.jobs.Apply(d)
	if errors.Is(err, job.ErrInvalidTransition) {
		// A notification already reported the job as stopped.
		j, err = c.jobs.Get(d.ID)
	}
	if err != nil {
		jobsDispatchedTotal.WithLabelValues(string(kind), "bad_response").Inc()
		return nil, fmt.Errorf("%s response: %w", kind, err)
	}
	jobsDispatchedTotal.WithLabelValues(string(kind), "accepted").Inc()
	c.log.Debug().Int("job", d.ID).Str("kind", string(kind)).Str("printer", printerName).Msg("job dispatched")
	return j, nil
}
