package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fleetops/dispatchd/core/model"
)

// Fixture is the JSON shape of a seed file: the pickups, vehicles and orders
// loaded into the in-memory store before the loop starts.
type Fixture struct {
	Pickups  []model.PickupPoint `json:"pickups"`
	Vehicles []model.Vehicle     `json:"vehicles"`
	Orders   []model.Order       `json:"orders"`
}

// Seed loads a fixture file into the service's store.
func (s *Service) Seed(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var fx Fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	for _, p := range fx.Pickups {
		s.Store.AddPickup(p)
	}
	for _, v := range fx.Vehicles {
		if err := s.Store.AddVehicle(v); err != nil {
			return fmt.Errorf("seed vehicle %s: %w", v.ID, err)
		}
	}
	for _, o := range fx.Orders {
		if err := s.Store.AddOrder(o); err != nil {
			return fmt.Errorf("seed order %s: %w", o.ID, err)
		}
	}
	s.log.Infof("seeded %d pickups, %d vehicles, %d orders",
		len(fx.Pickups), len(fx.Vehicles), len(fx.Orders))
	return nil
}
