// Package firerisk reads the daily forest-fire danger bulletin and turns
// the levels of the zones a stage crosses into short warnings.
package firerisk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smukkama/gr20-alert/internal/external"
	"github.com/smukkama/gr20-alert/internal/itinerary"
)

// Levels of the bulletin, 1 (low) to 5 (exceptional).
var levelNames = map[int]string{
	1: "faible",
	2: "modéré",
	3: "sévère",
	4: "très sévère",
	5: "exceptionnel",
}

// LevelName returns the French bulletin name of level.
func LevelName(level int) string {
	if name, ok := levelNames[level]; ok {
		return name
	}
	return fmt.Sprintf("Stufe %d", level)
}

// Bulletin is the feed document:
//
//	{"date":"2025-07-07","zones":[{"zone":"balagne","level":3}]}
type Bulletin struct {
	Date  string       `json:"date"`
	Zones []ZoneRating `json:"zones"`
}

type ZoneRating struct {
	Zone  string `json:"zone"`
	Level int    `json:"level"`
}

// Client fetches bulletins.
type Client struct {
	client   *external.Client
	url      string
	minLevel int
}

// NewClient returns a client; warnings are produced from minLevel upwards.
func NewClient(feedURL string, minLevel int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		client:   external.NewClient(&http.Client{Timeout: timeout}, "firerisk", ""),
		url:      feedURL,
		minLevel: minLevel,
	}
}

// Bulletin fetches the bulletin of date.
func (c *Client) Bulletin(ctx context.Context, date time.Time) (*Bulletin, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}
	q := u.Query()
	q.Set("date", date.Format("2006-01-02"))
	u.RawQuery = q.Encode()

	var b Bulletin
	if err := c.client.GetJSON(ctx, u.String(), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Warnings returns one "{zone}: {level}" entry per zone of stage rated at
// or above the minimum level, in point order.
func (c *Client) Warnings(ctx context.Context, stage *itinerary.Stage, date time.Time) ([]string, error) {
	zones := StageZones(stage)
	if len(zones) == 0 {
		return nil, nil
	}

	b, err := c.Bulletin(ctx, date)
	if err != nil {
		return nil, err
	}
	return Warnings(b, zones, c.minLevel), nil
}

// StageZones lists the distinct fire zones of the stage's points.
func StageZones(stage *itinerary.Stage) []string {
	if stage == nil {
		return nil
	}
	seen := make(map[string]bool)
	var zones []string
	for _, p := range stage.Points {
		z := strings.ToLower(strings.TrimSpace(p.FireZone))
		if z == "" || seen[z] {
			continue
		}
		seen[z] = true
		zones = append(zones, z)
	}
	return zones
}

// Warnings filters a bulletin down to zones at or above minLevel.
func Warnings(b *Bulletin, zones []string, minLevel int) []string {
	levels := make(map[string]int, len(b.Zones))
	for _, z := range b.Zones {
		levels[strings.ToLower(z.Zone)] = z.Level
	}

	var out []string
	for _, zone := range zones {
		level, ok := levels[zone]
		if !ok || level < minLevel {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s", zone, LevelName(level)))
	}
	return out
}
