// Package fixtures loads YAML seed data and recorded events.
package fixtures

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fentz26/icad/internal/inspection"
	"github.com/fentz26/icad/internal/models"
	"gopkg.in/yaml.v3"
)

// Seed is the content of a seed file.
type Seed struct {
	SystemCodes  []models.SystemCode   `yaml:"system_codes"`
	SystemStatus []models.SystemStatus `yaml:"system_status"`
	Cassettes    []models.Cassette     `yaml:"cassettes"`
	ShipRecv     []models.ShipRecv     `yaml:"ship_recv"`
}

// Seeder is the store surface a seed is applied to.
type Seeder interface {
	UpsertSystemCode(ctx context.Context, c models.SystemCode) error
	SetSystemStatus(ctx context.Context, statusType, name, value string) error
	CreateCassette(ctx context.Context, c *models.Cassette) error
	CreateShipRecv(ctx context.Context, cstID, cycleID string, kind models.ShipRecvKind, returnType string) (*models.ShipRecv, error)
}

// Counts reports how many rows of each kind were written.
type Counts struct {
	SystemCodes  int
	SystemStatus int
	Cassettes    int
	ShipRecv     int
}

func (c Counts) String() string {
	return fmt.Sprintf("%d system codes, %d status flags, %d cassettes, %d ship/recv records",
		c.SystemCodes, c.SystemStatus, c.Cassettes, c.ShipRecv)
}

// LoadSeed reads a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return seed, nil
}

// ParseSeed decodes seed YAML. Unknown keys are rejected.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := decodeStrict(data, &seed); err != nil {
		return nil, err
	}
	for i, c := range seed.Cassettes {
		if strings.TrimSpace(c.ID) == "" {
			return nil, fmt.Errorf("cassettes[%d]: cst_id is required", i)
		}
	}
	for i, r := range seed.ShipRecv {
		if r.CassetteID == "" {
			return nil, fmt.Errorf("ship_recv[%d]: cst_id is required", i)
		}
		if r.Kind != models.ShipRecvShip && r.Kind != models.ShipRecvReceive {
			return nil, fmt.Errorf("ship_recv[%d]: kind %q: want SHIP or RECEIVE", i, r.Kind)
		}
	}
	return &seed, nil
}

// Apply writes the seed in dependency order and stops at the first error.
func (s *Seed) Apply(ctx context.Context, st Seeder) (Counts, error) {
	var n Counts
	for _, c := range s.SystemCodes {
		if err := st.UpsertSystemCode(ctx, c); err != nil {
			return n, fmt.Errorf("system code %s/%s: %w", c.Category, c.Code, err)
		}
		n.SystemCodes++
	}
	for _, ss := range s.SystemStatus {
		name := ss.Name
		if name == "" {
			name = ss.StatusType
		}
		if err := st.SetSystemStatus(ctx, ss.StatusType, name, ss.Value); err != nil {
			return n, fmt.Errorf("system status %s/%s: %w", ss.StatusType, name, err)
		}
		n.SystemStatus++
	}
	for i := range s.Cassettes {
		c := s.Cassettes[i]
		if err := st.CreateCassette(ctx, &c); err != nil {
			return n, fmt.Errorf("cassette %s: %w", c.ID, err)
		}
		n.Cassettes++
	}
	for _, r := range s.ShipRecv {
		if _, err := st.CreateShipRecv(ctx, r.CassetteID, r.CycleID, r.Kind, r.ReturnType); err != nil {
			return n, fmt.Errorf("ship_recv %s: %w", r.CassetteID, err)
		}
		n.ShipRecv++
	}
	return n, nil
}

// replayFile is the content of a replay file.
type replayFile struct {
	Events []inspection.Event `yaml:"events"`
}

// LoadReplay reads recorded events. They are tagged OFFLINE.
func LoadReplay(path string) ([]inspection.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	events, err := ParseReplay(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

// ParseReplay decodes replay YAML.
func ParseReplay(data []byte) ([]inspection.Event, error) {
	var f replayFile
	if err := decodeStrict(data, &f); err != nil {
		return nil, err
	}
	for i := range f.Events {
		f.Events[i].Channel = models.ChannelOffline
	}
	return f.Events, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
