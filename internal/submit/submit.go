// Package submit delivers an order draft to a prioritized list of candidate
// endpoints. Candidates are functionally equivalent backends; only the first
// success counts, so attempts are strictly sequential — never parallel — to
// avoid duplicate order creation.
package submit

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/atelier-commerce/checkout/internal/domain/order"
)

// DefaultAttemptTimeout bounds a single candidate attempt when the config
// does not say otherwise. Expiry is treated as a network failure.
const DefaultAttemptTimeout = 10 * time.Second

// Config configures the Submitter.
type Config struct {
	// Candidates are endpoint URLs tried in priority order.
	Candidates []string
	// AttemptTimeout bounds each individual attempt.
	AttemptTimeout time.Duration
}

// Attempt records the outcome of one candidate attempt.
type Attempt struct {
	Endpoint string `json:"endpoint"`
	Status   int    `json:"status,omitempty"`
	Reason   string `json:"reason"`
	// Skipped marks 404/405 responses: the candidate does not exist on that
	// backend, which is not a hard failure.
	Skipped bool `json:"skipped,omitempty"`
}

// Outcome is the discriminated result of a submission run. Delivered=false
// means every candidate was exhausted and the caller must fall back to the
// local pending queue.
type Outcome struct {
	Delivered bool
	Endpoint  string
	OrderID   string
	Attempts  []Attempt
}

// Submitter posts order drafts to candidate endpoints.
type Submitter struct {
	client     *resty.Client
	candidates []string
}

// New creates a Submitter with an instrumented HTTP transport and the
// configured per-attempt timeout.
func New(cfg Config) *Submitter {
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport))
	return &Submitter{client: client, candidates: cfg.Candidates}
}

// savePayload wraps the draft in the write API envelope.
type savePayload struct {
	Action string `json:"action"`
	*order.Draft
}

// Submit tries each candidate in order and short-circuits on the first JSON
// success response. It returns a non-delivered Outcome (not an error) when
// all candidates fail; the only error paths are context cancellation and an
// empty candidate list.
func (s *Submitter) Submit(ctx context.Context, draft *order.Draft) (*Outcome, error) {
	if len(s.candidates) == 0 {
		return nil, fmt.Errorf("no submission candidates configured")
	}

	payload := savePayload{Action: "save-order", Draft: draft}
	attempts := make([]Attempt, 0, len(s.candidates))

	for _, endpoint := range s.candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := s.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json").
			SetBody(payload).
			Post(endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			attempts = append(attempts, Attempt{
				Endpoint: endpoint,
				Reason:   fmt.Sprintf("network: %v", err),
			})
			continue
		}

		code := resp.StatusCode()
		switch {
		case code == http.StatusNotFound || code == http.StatusMethodNotAllowed:
			// The candidate path does not exist on this backend; move on
			// without counting a hard failure.
			attempts = append(attempts, Attempt{
				Endpoint: endpoint,
				Status:   code,
				Reason:   "endpoint not present",
				Skipped:  true,
			})

		case code >= 200 && code < 300:
			ok, orderID, perr := parseSuccessBody(resp.Body())
			if perr != nil {
				attempts = append(attempts, Attempt{
					Endpoint: endpoint,
					Status:   code,
					Reason:   fmt.Sprintf("non-JSON body: %v", perr),
				})
				continue
			}
			if !ok {
				attempts = append(attempts, Attempt{
					Endpoint: endpoint,
					Status:   code,
					Reason:   "backend reported failure",
				})
				continue
			}
			if orderID == "" {
				orderID = draft.OrderID
			}
			return &Outcome{
				Delivered: true,
				Endpoint:  endpoint,
				OrderID:   orderID,
				Attempts:  attempts,
			}, nil

		default:
			attempts = append(attempts, Attempt{
				Endpoint: endpoint,
				Status:   code,
				Reason:   fmt.Sprintf("status %d", code),
			})
		}
	}

	return &Outcome{Delivered: false, Attempts: attempts}, nil
}

// parseSuccessBody decodes a candidate response tolerantly: success may be a
// boolean, and the order id may arrive as order_id, orderId, or id, as a
// string or a number, depending on the backend.
func parseSuccessBody(body []byte) (success bool, orderID string, err error) {
	d := jx.DecodeBytes(body)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "success":
			v, err := d.Bool()
			if err != nil {
				return err
			}
			success = v
			return nil
		case "order_id", "orderId", "id":
			switch d.Next() {
			case jx.String:
				v, err := d.Str()
				if err != nil {
					return err
				}
				orderID = v
				return nil
			case jx.Number:
				n, err := d.Num()
				if err != nil {
					return err
				}
				orderID = strings.Trim(string(n), `"`)
				return nil
			default:
				return d.Skip()
			}
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return false, "", err
	}
	return success, orderID, nil
}
