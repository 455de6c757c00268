package conveyor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Daemon notification methods.
const (
	notifyPrinterAdded   = "printeradded"
	notifyPrinterChanged = "printerchanged"
	notifyPrinterRemoved = "printerremoved"
	notifyJobAdded       = "jobadded"
	notifyJobChanged     = "jobchanged"
)

// handleNotification applies one daemon notification. It reports whether the
// method is one the client understands.
func (c *Client) handleNotification(method string, params json.RawMessage) bool {
	doc := firstParam(params)

	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	switch method {
	case notifyPrinterAdded, notifyPrinterChanged:
		c.touched.printer(uniqueNameOf(doc))
		c.applyPrinter(method, doc, true)
	case notifyPrinterRemoved:
		c.touched.printer(uniqueNameOf(doc))
		c.removePrinter(doc)
	case notifyJobAdded, notifyJobChanged:
		c.touched.job(doc)
		c.applyJob(method, doc, true)
	default:
		c.log.Debug().Str("method", method).Msg("ignoring unknown notification")
		return false
	}
	return true
}

// applyPrinter applies one printer document. report passes a rejection on to
// the update error handler.
func (c *Client) applyPrinter(method string, doc json.RawMessage, report bool) error {
	s, err := c.printers.ApplyJSON(doc)
	stateUpdatesTotal.WithLabelValues(updateResult(err)).Inc()
	if err != nil {
		c.log.Warn().Err(err).Str("method", method).Msg("rejected printer update")
		if report {
			c.reportUpdateError(method, err)
		}
		return err
	}
	c.log.Debug().
		Str("printer", s.UniqueName()).
		Str("status", s.Info().ConnectionStatus.String()).
		Msg("printer updated")
	return nil
}

func (c *Client) removePrinter(doc json.RawMessage) {
	name := uniqueNameOf(doc)
	if name == "" {
		err := fmt.Errorf("%s: no unique name in %s", notifyPrinterRemoved, doc)
		c.log.Warn().Err(err).Msg("rejected printer removal")
		c.reportUpdateError(notifyPrinterRemoved, err)
		return
	}
	if err := c.printers.Remove(name); err != nil {
		c.log.Debug().Err(err).Str("printer", name).Msg("removal of unknown printer")
		return
	}
	c.log.Info().Str("printer", name).Msg("printer removed")
}

func (c *Client) applyJob(method string, doc json.RawMessage, report bool) error {
	j, err := c.jobs.ApplyJSON(doc)
	if err != nil {
		c.log.Warn().Err(err).Str("method", method).Msg("rejected job update")
		if report {
			c.reportUpdateError(method, err)
		}
		return err
	}
	d := j.Snapshot()
	c.log.Debug().Int("job", d.ID).Str("state", string(d.State)).Msg("job updated")
	return nil
}

func (c *Client) reportUpdateError(method string, err error) {
	if c.onUpdateError != nil {
		c.onUpdateError(method, err)
	}
}

// uniqueNameOf accepts either a printer document or a bare name.
func uniqueNameOf(doc json.RawMessage) string {
	var named struct {
		UniqueName string `json:"uniqueName"`
	}
	if err := json.Unmarshal(doc, &named); err == nil && named.UniqueName != "" {
		return named.UniqueName
	}
	var name string
	if err := json.Unmarshal(doc, &name); err == nil {
		return name
	}
	return ""
}

// touchSet records the printers and jobs that notifications changed while a
// Sync was in flight. Sync leaves those alone, since its lists are older. A
// nil *touchSet records nothing.
type touchSet struct {
	printers map[string]bool
	jobs     map[int]bool
}

func newTouchSet() *touchSet {
	return &touchSet{printers: make(map[string]bool), jobs: make(map[int]bool)}
}

func (t *touchSet) printer(name string) {
	if t != nil && name != "" {
		t.printers[name] = true
	}
}

func (t *touchSet) job(doc json.RawMessage) {
	if t == nil {
		return
	}
	if id, ok := jobIDOf(doc); ok {
		t.jobs[id] = true
	}
}

func (t *touchSet) hasJob(doc json.RawMessage) bool {
	id, ok := jobIDOf(doc)
	return ok && t.jobs[id]
}

func jobIDOf(doc json.RawMessage) (int, bool) {
	var withID struct {
		ID *int `json:"id"`
	}
	if err := json.Unmarshal(doc, &withID); err != nil || withID.ID == nil {
		return 0, false
	}
	return *withID.ID, true
}

// Sync fetches the daemon's full printer and job lists and applies them.
// Printers the daemon no longer reports are dropped. Printers and jobs that a
// notification changed after the request went out keep the notified state.
// Documents that fail validation are skipped and returned joined in the
// error; they are not passed to the update error handler.
//
// Sync must not be called from a client callback.
func (c *Client) Sync(ctx context.Context) error {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	c.applyMu.Lock()
	c.touched = newTouchSet()
	c.applyMu.Unlock()
	defer func() {
		c.applyMu.Lock()
		c.touched = nil
		c.applyMu.Unlock()
	}()

	var printers []json.RawMessage
	if err := c.Call(ctx, "getprinters", nil, &printers); err != nil {
		return fmt.Errorf("getprinters: %w", err)
	}

	var errs []error
	c.applyMu.Lock()
	seen := make(map[string]bool, len(printers))
	for _, doc := range printers {
		name := uniqueNameOf(doc)
		if name != "" {
			seen[name] = true
		}
		if c.touched.printers[name] {
			continue
		}
		if err := c.applyPrinter("getprinters", doc, false); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range c.printers.List() {
		name := s.UniqueName()
		if seen[name] || c.touched.printers[name] {
			continue
		}
		_ = c.printers.Remove(name)
		c.log.Info().Str("printer", name).Msg("printer dropped on sync")
	}
	c.applyMu.Unlock()

	var raw json.RawMessage
	if err := c.Call(ctx, "getjobs", nil, &raw); err != nil {
		return fmt.Errorf("getjobs: %w", err)
	}
	jobs, err := jobDocuments(raw)
	if err != nil {
		return fmt.Errorf("getjobs: %w", err)
	}
	c.applyMu.Lock()
	for _, doc := range jobs {
		if c.touched.hasJob(doc) {
			continue
		}
		if err := c.applyJob("getjobs", doc, false); err != nil {
			errs = append(errs, err)
		}
	}
	c.applyMu.Unlock()

	c.log.Info().
		Int("printers", c.printers.Len()).
		Int("jobs", len(jobs)).
		Int("rejected", len(errs)).
		Msg("synced with conveyor")
	return errors.Join(errs...)
}

// jobDocuments accepts either a list of jobs or an object keyed by job id.
func jobDocuments(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '{' {
		var byID map[string]json.RawMessage
		if err := json.Unmarshal(raw, &byID); err != nil {
			return nil, err
		}
		out := make([]json.RawMessage, 0, len(byID))
		for _, doc := range byID {
			out = append(out, doc)
		}
		return out, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}
