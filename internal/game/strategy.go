package game

import (
	"context"

	"github.com/example/power-grid/internal/board"
	"github.com/example/power-grid/internal/market"
	"github.com/example/power-grid/internal/rules"
)

// Strategy makes the decisions for one seat. Every call carries a deadline;
// an error or a late answer is replaced by the most conservative legal move.
type Strategy interface {
	ChooseAuction(ctx context.Context, req AuctionChoiceRequest) (AuctionChoice, error)
	Bid(ctx context.Context, req BidRequest) (BidResponse, error)
	Discard(ctx context.Context, req DiscardRequest) (DiscardResponse, error)
	BuyResources(ctx context.Context, req ResourceRequest) (ResourceResponse, error)
	Build(ctx context.Context, req BuildRequest) (BuildResponse, error)
	Power(ctx context.Context, req PowerRequest) (PowerResponse, error)
	Notify(ctx context.Context, n Notification) error
}

// Snapshot is a deep copy of the game as one player sees it.
type Snapshot struct {
	GameID       string                                 `json:"gameId"`
	Round        int                                    `json:"round"`
	Step         int                                    `json:"step"`
	Phase        Phase                                  `json:"phase"`
	You          PlayerID                               `json:"you,omitempty"`
	Order        []PlayerID                             `json:"order"`
	Players      []Player                               `json:"players"`
	Map          board.Snapshot                         `json:"map"`
	Resources    map[rules.Resource]market.ResourceView `json:"resources"`
	Plants       market.PlantMarketView                 `json:"plants"`
	BuildingCost int                                    `json:"buildingCost"`
	GameEndAt    int                                    `json:"gameEndCities"`
}

// Me returns the viewer's own record.
func (s Snapshot) Me() (Player, bool) {
	return s.Player(s.You)
}

// Player looks a player up by id.
func (s Snapshot) Player(id PlayerID) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// Choice is the answer to the auction prompt.
type Choice string

const (
	ChoicePass    Choice = "pass"
	ChoiceAuction Choice = "auction"
)

type AuctionChoiceRequest struct {
	State   Snapshot `json:"state"`
	CanPass bool     `json:"canPass"`
}

type AuctionChoice struct {
	Choice      Choice `json:"choice"`
	PlantNumber int    `json:"plantNumber,omitempty"`
}

// BidRequest asks for a bid. Opening is set for the starting player's first
// bid, which must be at least the plant's minimum; later bids must beat
// CurrentBid.
type BidRequest struct {
	State         Snapshot          `json:"state"`
	Plant         market.PowerPlant `json:"plant"`
	CurrentBid    int               `json:"currentBid"`
	HighestBidder PlayerID          `json:"highestBidder,omitempty"`
	Opening       bool              `json:"opening"`
}

// BidResponse carries the bid. Zero or anything not beating the current
// bid is a pass.
type BidResponse struct {
	Bid int `json:"bid"`
}

type DiscardRequest struct {
	State    Snapshot `json:"state"`
	NewPlant int      `json:"newPlant"`
}

type DiscardResponse struct {
	DiscardNumber int `json:"discardNumber"`
}

type ResourceRequest struct {
	State Snapshot `json:"state"`
}

type ResourceResponse struct {
	Purchases map[rules.Resource]int `json:"purchases"`
}

type BuildRequest struct {
	State Snapshot `json:"state"`
}

type BuildResponse struct {
	Locations []string `json:"locations"`
}

type PowerRequest struct {
	State Snapshot `json:"state"`
}

type PowerResponse struct {
	CitiesPowered     int                    `json:"citiesPowered"`
	ResourcesConsumed map[rules.Resource]int `json:"resourcesConsumed"`
}

// Event names carried by notifications.
const (
	EventSetup     = "setup"
	EventOrder     = "order"
	EventSale      = "plantSold"
	EventStep      = "stepAdvanced"
	EventPowered   = "powered"
	EventGameOver  = "gameOver"
	EventDiscarded = "plantDiscarded"
)

// Sale describes a finished auction.
type Sale struct {
	Winner PlayerID `json:"winner"`
	Plant  int      `json:"plant"`
	Price  int      `json:"price"`
}

// Notification is a one-way update. Only the fields relevant to Event are set.
type Notification struct {
	Event  string   `json:"event"`
	State  Snapshot `json:"state"`
	Sale   *Sale    `json:"sale,omitempty"`
	Result *Result  `json:"result,omitempty"`
}
