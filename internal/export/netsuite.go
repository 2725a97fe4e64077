package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/finchly/expenseflow/internal/models"
)

// NetsuiteConfig holds connection settings for the NetSuite REST interface
type NetsuiteConfig struct {
	BaseURL        string
	Account        string
	TokenID        string
	TokenSecret    string
	RequestTimeout time.Duration
}

// NetsuiteClient submits journal batches over the NetSuite REST interface.
// The batch reference is sent as the external ID, which NetSuite deduplicates
// on, making resubmission of an accepted batch a no-op on their side.
type NetsuiteClient struct {
	cfg      NetsuiteConfig
	http     *http.Client
	strategy *RetryStrategy
	logger   *zap.Logger
}

// NewNetsuiteClient creates a new NetSuite ledger client
func NewNetsuiteClient(cfg NetsuiteConfig, logger *zap.Logger) *NetsuiteClient {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &NetsuiteClient{
		cfg:      cfg,
		http:     &http.Client{Timeout: timeout},
		strategy: NewRetryStrategy(),
		logger:   logger,
	}
}

type netsuiteLine struct {
	LineNumber  int    `json:"lineNumber"`
	Account     string `json:"account"`
	AmountCents int64  `json:"amountCents"`
	Department  string `json:"department,omitempty"`
	Class       string `json:"class,omitempty"`
	Memo        string `json:"memo,omitempty"`
	TaxCode     string `json:"taxCode,omitempty"`
}

type netsuiteSubmission struct {
	ExternalID string         `json:"externalId"`
	Account    string         `json:"account"`
	Lines      []netsuiteLine `json:"lines"`
}

type netsuiteReply struct {
	TranID string `json:"tranId"`
	Status string `json:"status"`
}

// SubmitBatch posts one journal batch. Network failures, 5xx and 429
// replies come back as TransientError; other 4xx replies are permanent.
func (c *NetsuiteClient) SubmitBatch(ctx context.Context, req *LedgerRequest) (*LedgerResponse, error) {
	payload := netsuiteSubmission{
		ExternalID: req.BatchReference,
		Account:    c.cfg.Account,
		Lines:      toNetsuiteLines(req.Lines),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &PermanentError{Err: fmt.Errorf("failed to encode submission: %w", err)}
	}

	url := c.cfg.BaseURL + "/v1/journal-batches"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &PermanentError{Err: err}
	}
	c.setHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to read ledger reply: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Ledger rejected batch submission",
			zap.String("batch_reference", req.BatchReference),
			zap.Int("status_code", resp.StatusCode))
		cause := fmt.Errorf("ledger replied %d: %s", resp.StatusCode, string(raw))
		if c.strategy.IsRetryableStatusCode(resp.StatusCode) {
			return nil, &TransientError{Err: cause}
		}
		return nil, &PermanentError{Err: cause}
	}

	var reply netsuiteReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, &PermanentError{Err: fmt.Errorf("failed to decode ledger reply: %w", err)}
	}

	return &LedgerResponse{TransactionID: reply.TranID, Raw: string(raw)}, nil
}

// LookupBatch asks the ledger whether a batch reference was already
// accepted. Used to reconcile batches left in submitting by a crashed run.
func (c *NetsuiteClient) LookupBatch(ctx context.Context, batchReference string) (*LedgerResponse, error) {
	url := c.cfg.BaseURL + "/v1/journal-batches/" + batchReference
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &PermanentError{Err: err}
	}
	c.setHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to read ledger reply: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrBatchNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		cause := fmt.Errorf("ledger replied %d: %s", resp.StatusCode, string(raw))
		if c.strategy.IsRetryableStatusCode(resp.StatusCode) {
			return nil, &TransientError{Err: cause}
		}
		return nil, &PermanentError{Err: cause}
	}

	var reply netsuiteReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, &PermanentError{Err: fmt.Errorf("failed to decode ledger reply: %w", err)}
	}
	return &LedgerResponse{TransactionID: reply.TranID, Raw: string(raw)}, nil
}

func (c *NetsuiteClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("NLAuth nlauth_account=%s, nlauth_token=%s:%s",
		c.cfg.Account, c.cfg.TokenID, c.cfg.TokenSecret))
}

func toNetsuiteLines(lines []*models.JournalLine) []netsuiteLine {
	out := make([]netsuiteLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, netsuiteLine{
			LineNumber:  line.LineNumber,
			Account:     line.GLAccount,
			AmountCents: line.AmountCents,
			Department:  line.Department,
			Class:       line.Class,
			Memo:        line.Memo,
			TaxCode:     line.TaxCode,
		})
	}
	return out
}
