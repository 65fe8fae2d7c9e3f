package selftest

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	"github.jpl.nasa.gov/bdube/dmx820/rtd/dmx820"
)

// EnvPrefix prefixes the environment variables that override the config file.
// Nested keys are joined with a double underscore, DMX820_SIM__FIFO_SIZE
const EnvPrefix = "DMX820_"

// ClockSetup is the programmable clock that paces the loopback
type ClockSetup struct {
	// Master is the clock divided down, see dmx820.ValidateClockSource
	Master string `koanf:"master" yaml:"master"`

	// Period is the divisor, 93 gives about 100 kHz from the 25 MHz bus
	Period uint32 `koanf:"period" yaml:"period"`
}

// SimSetup configures the simulated board used by the sim backend
type SimSetup struct {
	Boards      int     `koanf:"boards" yaml:"boards"`
	FIFOSize    uint32  `koanf:"fifo_size" yaml:"fifo_size"`
	ClockRate   float64 `koanf:"clock_rate" yaml:"clock_rate"`
	Unwired     bool    `koanf:"unwired" yaml:"unwired"`
	MaxAlloc    int     `koanf:"max_alloc" yaml:"max_alloc"`
	OpenBusy    int     `koanf:"open_busy" yaml:"open_busy"`
	CorruptAt   int     `koanf:"corrupt_at" yaml:"corrupt_at"`
	CorruptMask uint16  `koanf:"corrupt_mask" yaml:"corrupt_mask"`

	// FailDMA is a DMA channel whose completion reports FailStatus, -1 for none
	FailDMA    int `koanf:"fail_dma" yaml:"fail_dma"`
	FailStatus int `koanf:"fail_status" yaml:"fail_status"`
}

// SimConfig converts the setup to the simulator's configuration
func (s SimSetup) SimConfig() dmx820.SimConfig {
	cfg := dmx820.SimConfig{
		Boards:      s.Boards,
		FIFOSize:    s.FIFOSize,
		ClockRate:   s.ClockRate,
		Unwired:     s.Unwired,
		MaxAlloc:    s.MaxAlloc,
		OpenBusy:    s.OpenBusy,
		CorruptAt:   s.CorruptAt,
		CorruptMask: s.CorruptMask,
	}
	if s.FailDMA >= 0 && s.FailStatus != 0 {
		cfg.CallbackResult = map[dmx820.DMAChannel]dmx820.StatusCode{
			dmx820.DMAChannel(s.FailDMA): dmx820.StatusCode(s.FailStatus),
		}
	}
	return cfg
}

// Config is the configuration of the self-test programs
type Config struct {
	// Backend is hardware or sim
	Backend string `koanf:"backend" yaml:"backend"`

	// Board is the minor number of the board, -1 asks on the console
	Board int `koanf:"board" yaml:"board"`

	// OpenRetry is how long to keep retrying a board that refuses to open
	OpenRetry time.Duration `koanf:"open_retry" yaml:"open_retry"`

	// DMATimeout bounds each wait on a DMA completion
	DMATimeout time.Duration `koanf:"dma_timeout" yaml:"dma_timeout"`

	// Seed seeds the random fill, 0 seeds from the clock
	Seed int64 `koanf:"seed" yaml:"seed"`

	// Reserved is the part of the FIFO left unused
	Reserved uint32 `koanf:"reserved" yaml:"reserved"`

	Clock ClockSetup `koanf:"clock" yaml:"clock"`

	// PauseOnExit waits for enter before the console program exits
	PauseOnExit bool `koanf:"pause_on_exit" yaml:"pause_on_exit"`

	// Spinner shows a spinner on the console while waiting on DMA
	Spinner bool `koanf:"spinner" yaml:"spinner"`

	// Dump is a FITS file the buffers are written to, empty for none
	Dump string `koanf:"dump" yaml:"dump"`

	// KeepData keeps copies of the buffers in the report
	KeepData bool `koanf:"keep_data" yaml:"keep_data"`

	// Addr is the listen address of the HTTP server
	Addr string `koanf:"addr" yaml:"addr"`

	Sim SimSetup `koanf:"sim" yaml:"sim"`
}

// DefaultConfig returns the configuration used when nothing overrides it
func DefaultConfig() Config {
	return Config{
		Backend:     "hardware",
		Board:       -1,
		OpenRetry:   2 * time.Second,
		DMATimeout:  5 * time.Second,
		Reserved:    DefaultReserved,
		Clock:       ClockSetup{Master: "25mhz", Period: 93},
		PauseOnExit: true,
		Spinner:     true,
		Addr:        ":8000",
		Sim: SimSetup{
			Boards:     1,
			FIFOSize:   0x2000,
			FailDMA:    -1,
			FailStatus: 7,
		},
	}
}

// LoadConfig layers the defaults, the YAML file at path and the environment.
// A missing file is not an error
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	c := Config{}
	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return c, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !strings.Contains(err.Error(), "no such") { // file missing, who cares
				return c, fmt.Errorf("error loading config: %w", err)
			}
		}
	}
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.Replace(s, "__", ".", -1)
	}), nil)
	if err != nil {
		return c, err
	}
	err = k.Unmarshal("", &c)
	return c, err
}

// Driver returns the driver the backend names
func (c Config) Driver() (dmx820.Driver, error) {
	switch strings.ToLower(c.Backend) {
	case "hardware", "hw", "":
		return dmx820.Hardware(), nil
	case "sim", "simulator":
		return dmx820.NewSim(c.Sim.SimConfig()), nil
	default:
		return nil, fmt.Errorf("backend must be a member of {hardware, sim}, got %q", c.Backend)
	}
}

// Options converts the configuration to the options of a Session
func (c Config) Options(logger *log.Logger, obs Observer) (Options, error) {
	master, err := dmx820.ValidateClockSource(c.Clock.Master)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Reserved:    c.Reserved,
		ClockMaster: master,
		ClockPeriod: c.Clock.Period,
		Timeout:     c.DMATimeout,
		Seed:        c.Seed,
		KeepData:    c.KeepData || c.Dump != "",
		Logger:      logger,
		Observer:    obs,
	}, nil
}
