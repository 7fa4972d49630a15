package services

import (
	"math/big"
	"sync"

	"github.com/DalaiLlaama/card/internal/models"

	"github.com/rs/zerolog"
)

const (
	EventPausing  = "pausing"
	EventResuming = "resuming"

	msgPausing  = "Temporarily pausing payments."
	msgResuming = "Temporarily resuming payments."
)

// Receives state-change notifications for connected peers
type Notifier interface {
	Announce(event string, msg string)
	PublishStatus()
}

// Gates payments on the stopped/running/paused state
type AutopayController struct {
	balances  *ChannelStateStore
	threshold *big.Int
	log       zerolog.Logger

	mu       sync.Mutex
	state    models.AutopayState
	notifier Notifier
}

func NewAutopayController(balances *ChannelStateStore, threshold *big.Int, log zerolog.Logger) *AutopayController {
	return &AutopayController{
		balances:  balances,
		threshold: new(big.Int).Set(threshold),
		log:       log.With().Str("component", "autopay").Logger(),
		state:     models.AutopayStopped,
	}
}

func (c *AutopayController) SetNotifier(n Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = n
}

func (c *AutopayController) State() models.AutopayState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Moves Stopped to Running once setup is complete. Has no effect afterwards.
func (c *AutopayController) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == models.AutopayStopped {
		c.state = models.AutopayRunning
		c.log.Info().Msg("autopay running")
	}
}

func (c *AutopayController) ForcePause() {
	c.transition(func(s models.AutopayState) bool { return s != models.AutopayStopped }, models.AutopayPaused)
}

func (c *AutopayController) ForceResume() {
	c.transition(func(s models.AutopayState) bool { return s != models.AutopayStopped }, models.AutopayRunning)
}

// Pauses when the channel token balance is at or below the threshold
func (c *AutopayController) CheckLowBalance() {
	if c.balances.TokenBalance().Cmp(c.threshold) > 0 {
		return
	}
	c.transition(func(s models.AutopayState) bool { return s == models.AutopayRunning }, models.AutopayPaused)
}

// Resumes a paused controller once the channel token balance is above the threshold
func (c *AutopayController) CheckTopup() {
	if c.balances.TokenBalance().Cmp(c.threshold) <= 0 {
		return
	}
	c.transition(func(s models.AutopayState) bool { return s == models.AutopayPaused }, models.AutopayRunning)
}

func (c *AutopayController) transition(allowed func(models.AutopayState) bool, to models.AutopayState) {
	c.mu.Lock()
	if !allowed(c.state) {
		c.mu.Unlock()
		return
	}
	from := c.state
	c.state = to
	n := c.notifier
	c.mu.Unlock()

	c.log.Info().Str("from", string(from)).Str("to", string(to)).Msg("autopay state changed")
	if n == nil {
		return
	}
	if to == models.AutopayPaused {
		n.Announce(EventPausing, msgPausing)
	} else {
		n.Announce(EventResuming, msgResuming)
	}
	n.PublishStatus()
}
