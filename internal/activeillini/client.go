// Package activeillini is an HTTP client for the Active Illini facility
// booking site. It authenticates with browser-extracted session cookies and
// mirrors the request flow the booking pages use: discover court ids from
// the facilities page, read slot buttons from the slots page, and POST the
// reserve form.
package activeillini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/court-scheduler/internal/facilities"
	"github.com/example/court-scheduler/internal/session"
)

// Error taxonomy for reservation attempts. Taken is a definitive rejection
// (the court is gone); the other two must not consume a contention
// candidate.
var (
	ErrTaken       = errors.New("slot taken")
	ErrAuthExpired = errors.New("session cookies rejected")
	ErrTransient   = errors.New("transient provider error")
)

const DefaultBaseURL = "https://active.illinois.edu"

// CredentialSource supplies the current cookie snapshot. Every request
// reads it fresh so an asynchronous reload is picked up immediately.
type CredentialSource interface {
	Snapshot() session.Snapshot
}

type Client struct {
	hc      *http.Client
	base    string
	creds   CredentialSource
	timeout time.Duration
}

// New builds a client. timeout bounds each individual call, reservation
// submissions included.
func New(baseURL string, creds CredentialSource, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		hc:      &http.Client{Timeout: timeout},
		base:    strings.TrimRight(baseURL, "/"),
		creds:   creds,
		timeout: timeout,
	}
}

// SlotButton is one enabled slot button scraped from a court's slots page.
// The ids are what the reserve endpoint wants back.
type SlotButton struct {
	AptID      string
	TimeslotID string
	InstanceID string
	Text       string
	SpotsLeft  string
}

// Availability is the per-court view of one slot on one date.
type Availability struct {
	Courts []string              // every court id behind the facility
	Open   map[string]SlotButton // court id -> its matching open slot
}

// CourtIDs discovers the court ids behind a product from its facilities
// page.
func (c *Client) CourtIDs(ctx context.Context, productID string) ([]string, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/booking/%s/facilities", c.base, productID))
	if err != nil {
		return nil, err
	}
	ids := parseCourtIDs(string(body))
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no court ids on facilities page for product %s", ErrTransient, productID)
	}
	return ids, nil
}

// CourtSlots fetches the open slot buttons for one court on one date.
func (c *Client) CourtSlots(ctx context.Context, productID, courtID string, date time.Time) ([]SlotButton, error) {
	u := fmt.Sprintf("%s/booking/%s/slots/%s/%d/%d/%d",
		c.base, productID, courtID, date.Year(), int(date.Month()), date.Day())
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	return parseSlotButtons(string(body)), nil
}

// OpenSlot reports whether slotText is open on the given court.
func (c *Client) OpenSlot(ctx context.Context, productID, courtID string, date time.Time, slotText string) (SlotButton, bool, error) {
	slots, err := c.CourtSlots(ctx, productID, courtID, date)
	if err != nil {
		return SlotButton{}, false, err
	}
	for _, sb := range slots {
		if sb.Text == slotText {
			return sb, true, nil
		}
	}
	return SlotButton{}, false, nil
}

// Availability queries every court of the facility for the given date and
// slot text. Court ids cached on the facility are used as-is; otherwise
// they are discovered first. A court whose slots page cannot be fetched is
// treated as not open rather than failing the whole query, but when no
// court could be queried at all the result would say "nothing open" about
// an outage, so that case fails instead.
func (c *Client) Availability(ctx context.Context, fac facilities.Facility, date time.Time, slotText string) (Availability, error) {
	courts := fac.CourtIDs
	if len(courts) == 0 {
		var err error
		courts, err = c.CourtIDs(ctx, fac.ProductID)
		if err != nil {
			return Availability{}, err
		}
	}

	av := Availability{Courts: courts, Open: map[string]SlotButton{}}
	var queried int
	var lastErr error
	for _, id := range courts {
		sb, ok, err := c.OpenSlot(ctx, fac.ProductID, id, date, slotText)
		if err != nil {
			if errors.Is(err, ErrAuthExpired) {
				return Availability{}, err
			}
			lastErr = err
			continue
		}
		queried++
		if ok {
			av.Open[id] = sb
		}
	}
	if queried == 0 && lastErr != nil {
		if errors.Is(lastErr, ErrTransient) {
			return Availability{}, fmt.Errorf("no court reachable: %w", lastErr)
		}
		return Availability{}, fmt.Errorf("%w: no court reachable: %v", ErrTransient, lastErr)
	}
	return av, nil
}

// AggregatedSlot summarizes one slot text across all courts of a facility.
type AggregatedSlot struct {
	Text       string
	OpenCourts int
	Total      int
}

// AggregateSlots lists every open slot for a facility on a date, counting
// how many courts have it open.
func (c *Client) AggregateSlots(ctx context.Context, fac facilities.Facility, date time.Time) ([]AggregatedSlot, error) {
	courts := fac.CourtIDs
	if len(courts) == 0 {
		var err error
		courts, err = c.CourtIDs(ctx, fac.ProductID)
		if err != nil {
			return nil, err
		}
	}

	counts := map[string]int{}
	var order []string
	var queried int
	var lastErr error
	for _, id := range courts {
		slots, err := c.CourtSlots(ctx, fac.ProductID, id, date)
		if err != nil {
			if errors.Is(err, ErrAuthExpired) {
				return nil, err
			}
			lastErr = err
			continue
		}
		queried++
		for _, sb := range slots {
			if counts[sb.Text] == 0 {
				order = append(order, sb.Text)
			}
			counts[sb.Text]++
		}
	}
	if queried == 0 && lastErr != nil {
		if errors.Is(lastErr, ErrTransient) {
			return nil, fmt.Errorf("no court reachable: %w", lastErr)
		}
		return nil, fmt.Errorf("%w: no court reachable: %v", ErrTransient, lastErr)
	}

	out := make([]AggregatedSlot, 0, len(order))
	for _, text := range order {
		out = append(out, AggregatedSlot{Text: text, OpenCourts: counts[text], Total: len(courts)})
	}
	return out, nil
}

// Prepare warms the connection pool ahead of a reservation attempt and
// resolves the facility's court ids so the attempt itself skips discovery.
func (c *Client) Prepare(ctx context.Context, fac facilities.Facility) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.base+"/", nil)
	if err == nil {
		c.addHeaders(req)
		if res, herr := c.hc.Do(req); herr == nil {
			res.Body.Close()
		}
	}

	if len(fac.CourtIDs) > 0 {
		return fac.CourtIDs, nil
	}
	return c.CourtIDs(ctx, fac.ProductID)
}

// Ping checks that the session cookies are still accepted.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, c.base+"/booking/mybookings")
	return err
}

type reserveResponse struct {
	Success       bool   `json:"Success"`
	ErrorCode     string `json:"ErrorCode"`
	ErrorMessage  string `json:"ErrorMessage"`
	ParticipantID string `json:"ParticipantId"`
}

// Reserve submits the booking form for one slot on one court. A nil return
// means booked. Definitive rejections come back as ErrTaken; credential
// rejections as ErrAuthExpired; everything else as ErrTransient.
func (c *Client) Reserve(ctx context.Context, productID, courtID string, date time.Time, sb SlotButton) error {
	instanceID := sb.InstanceID
	if instanceID == "" {
		instanceID = "00000000-0000-0000-0000-000000000000"
	}
	form := url.Values{
		"bId":   {productID},
		"fId":   {courtID},
		"aId":   {sb.AptID},
		"tsId":  {sb.TimeslotID},
		"tsiId": {instanceID},
		"y":     {fmt.Sprint(date.Year())},
		"m":     {fmt.Sprint(int(date.Month()))},
		"d":     {fmt.Sprint(date.Day())},
		"t":     {""},
		"v":     {"0"},
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/booking/reserve", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	c.addHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", fmt.Sprintf("%s/booking/%s/slots/%s/%d/%d/%d",
		c.base, productID, courtID, date.Year(), int(date.Month()), date.Day()))

	res, err := c.hc.Do(req)
	if err != nil {
		return transportErr(err)
	}
	defer res.Body.Close()

	if err := classifyStatus(res.StatusCode); err != nil {
		return err
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: read reserve response: %v", ErrTransient, err)
	}

	var rr reserveResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		// A login page instead of JSON means the cookies are gone.
		if strings.Contains(strings.ToLower(string(body)), "login") {
			return fmt.Errorf("%w: reserve returned login page", ErrAuthExpired)
		}
		return fmt.Errorf("%w: unexpected reserve response: %v", ErrTransient, err)
	}
	if !rr.Success {
		detail := rr.ErrorCode
		if rr.ErrorMessage != "" {
			detail = rr.ErrorCode + ": " + rr.ErrorMessage
		}
		return fmt.Errorf("%w (%s)", ErrTaken, detail)
	}
	return nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	c.addHeaders(req)

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, transportErr(err)
	}
	defer res.Body.Close()

	if err := classifyStatus(res.StatusCode); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return body, nil
}

func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Origin", c.base)

	snap := c.creds.Snapshot()
	for name, value := range snap.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w (status=%d)", ErrAuthExpired, status)
	case status >= 400:
		return fmt.Errorf("%w (status=%d)", ErrTransient, status)
	}
	return nil
}

func transportErr(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: timeout: %v", ErrTransient, err)
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
