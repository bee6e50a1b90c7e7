package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// RawLog is one undecoded log entry as delivered by the chain gateway.
type RawLog struct {
	EventName   string          `json:"eventName"`
	TxHash      string          `json:"transactionHash"`
	BlockNumber uint64          `json:"blockNumber"`
	LogIndex    uint            `json:"logIndex"`
	BlockTime   time.Time       `json:"blockTime"`
	Payload     json.RawMessage `json:"payload"`
}

// ErrUnknownEvent is returned by Decode for event names without a decoder.
type ErrUnknownEvent struct {
	EventName string
}

func (e *ErrUnknownEvent) Error() string {
	return fmt.Sprintf("unknown event name %q", e.EventName)
}

// Decode turns a raw log into its concretely-typed event variant. Unknown
// event names return *ErrUnknownEvent so callers can skip-and-log instead
// of failing the stream.
func Decode(raw RawLog) (Event, error) {
	base := Base{
		LogKey: LogKey{
			TxHash:      raw.TxHash,
			BlockNumber: raw.BlockNumber,
			LogIndex:    raw.LogIndex,
		},
		BlockTime: raw.BlockTime,
	}

	dec, ok := decoders[raw.EventName]
	if !ok {
		return nil, &ErrUnknownEvent{EventName: raw.EventName}
	}
	ev, err := dec(base, raw.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s at %s#%d: %w", raw.EventName, raw.TxHash, raw.LogIndex, err)
	}
	return ev, nil
}

type decoderFunc func(Base, json.RawMessage) (Event, error)

func unmarshalPayload[T any](raw json.RawMessage) (T, error) {
	var p T
	if len(raw) == 0 {
		return p, fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	return p, nil
}

var decoders = map[string]decoderFunc{
	"ScoringRequested": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[struct {
			DomainTokenID string `json:"domainTokenId"`
			Requester     string `json:"requester"`
			Timestamp     int64  `json:"timestamp"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return &ScoringRequested{
			Base:             b,
			DomainTokenID:    p.DomainTokenID,
			RequesterAddress: p.Requester,
			RequestedAt:      time.Unix(p.Timestamp, 0).UTC(),
		}, nil
	},
	"ScoreSubmitted": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[struct {
			DomainTokenID string `json:"domainTokenId"`
			Score         int    `json:"score"`
			SubmittedBy   string `json:"submittedBy"`
			Timestamp     int64  `json:"timestamp"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return &ScoreSubmitted{
			Base:          b,
			DomainTokenID: p.DomainTokenID,
			Score:         p.Score,
			SubmittedBy:   p.SubmittedBy,
			SubmittedAt:   time.Unix(p.Timestamp, 0).UTC(),
		}, nil
	},
	"BatchScoringRequested": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[struct {
			DomainTokenIDs []string `json:"domainTokenIds"`
			Requester      string   `json:"requester"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return &BatchScoringRequested{Base: b, DomainTokenIDs: p.DomainTokenIDs, RequesterAddress: p.Requester}, nil
	},
	"BatchScoresSubmitted": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[struct {
			DomainTokenIDs []string `json:"domainTokenIds"`
			Scores         []int    `json:"scores"`
			SubmittedBy    string   `json:"submittedBy"`
		}](raw)
		if err != nil {
			return nil, err
		}
		if len(p.DomainTokenIDs) != len(p.Scores) {
			return nil, fmt.Errorf("token/score length mismatch: %d vs %d", len(p.DomainTokenIDs), len(p.Scores))
		}
		return &BatchScoresSubmitted{Base: b, DomainTokenIDs: p.DomainTokenIDs, Scores: p.Scores, SubmittedBy: p.SubmittedBy}, nil
	},
	"ScoreInvalidated": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[struct {
			DomainTokenID string `json:"domainTokenId"`
			InvalidatedBy string `json:"invalidatedBy"`
			Reason        string `json:"reason"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return &ScoreInvalidated{Base: b, DomainTokenID: p.DomainTokenID, InvalidatedBy: p.InvalidatedBy, Reason: p.Reason}, nil
	},
	"LoanCreated": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[struct {
			LoanID          string `json:"loanId"`
			Borrower        string `json:"borrower"`
			DomainTokenID   string `json:"domainTokenId"`
			PrincipalAmount string `json:"principalAmount"`
			InterestRate    int64  `json:"interestRate"`
			Duration        int64  `json:"duration"`
			TotalOwed       string `json:"totalOwed"`
			DueDate         int64  `json:"dueDate"`
			PoolID          string `json:"poolId"`
			RequestID       string `json:"requestId"`
			AiScore         int    `json:"aiScore"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return &LoanCreated{
			Base:            b,
			LoanID:          p.LoanID,
			BorrowerAddress: p.Borrower,
			DomainTokenID:   p.DomainTokenID,
			PrincipalAmount: p.PrincipalAmount,
			InterestRate:    p.InterestRate,
			DurationSeconds: p.Duration,
			TotalOwed:       p.TotalOwed,
			DueDate:         time.Unix(p.DueDate, 0).UTC(),
			PoolID:          p.PoolID,
			RequestID:       p.RequestID,
			AiScore:         p.AiScore,
		}, nil
	},
	"LoanRepaid": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[struct {
			LoanID          string `json:"loanId"`
			Borrower        string `json:"borrower"`
			RepaymentAmount string `json:"repaymentAmount"`
			IsFullyRepaid   bool   `json:"isFullyRepaid"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return &LoanRepaid{Base: b, LoanID: p.LoanID, BorrowerAddress: p.Borrower, RepaymentAmount: p.RepaymentAmount, IsFullyRepaid: p.IsFullyRepaid}, nil
	},
	"CollateralLocked": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[collateralPayload](raw)
		if err != nil {
			return nil, err
		}
		return &CollateralLocked{Base: b, LoanID: p.LoanID, DomainTokenID: p.DomainTokenID, BorrowerAddress: p.Borrower}, nil
	},
	"CollateralReleased": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[collateralPayload](raw)
		if err != nil {
			return nil, err
		}
		return &CollateralReleased{Base: b, LoanID: p.LoanID, DomainTokenID: p.DomainTokenID, BorrowerAddress: p.Borrower}, nil
	},
	"CollateralLiquidated": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[struct {
			collateralPayload
			Liquidator string `json:"liquidator"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return &CollateralLiquidated{Base: b, LoanID: p.LoanID, DomainTokenID: p.DomainTokenID, BorrowerAddress: p.Borrower, LiquidatorAddress: p.Liquidator}, nil
	},
	"PoolCreated": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[struct {
			PoolID           string `json:"poolId"`
			Creator          string `json:"creator"`
			InitialLiquidity string `json:"initialLiquidity"`
			MinAiScore       int    `json:"minAiScore"`
			InterestRate     int64  `json:"interestRate"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return &PoolCreated{Base: b, PoolID: p.PoolID, CreatorAddress: p.Creator, InitialLiquidity: p.InitialLiquidity, MinAiScore: p.MinAiScore, InterestRate: p.InterestRate}, nil
	},
	"LiquidityAdded": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[liquidityPayload](raw)
		if err != nil {
			return nil, err
		}
		return &LiquidityAdded{Base: b, PoolID: p.PoolID, ProviderAddress: p.Provider, Amount: p.Amount}, nil
	},
	"LiquidityRemoved": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[liquidityPayload](raw)
		if err != nil {
			return nil, err
		}
		return &LiquidityRemoved{Base: b, PoolID: p.PoolID, ProviderAddress: p.Provider, Amount: p.Amount}, nil
	},
	"PoolUpdated": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[struct {
			PoolID       string `json:"poolId"`
			MinAiScore   int    `json:"minAiScore"`
			InterestRate int64  `json:"interestRate"`
			Status       string `json:"status"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return &PoolUpdated{Base: b, PoolID: p.PoolID, MinAiScore: p.MinAiScore, InterestRate: p.InterestRate, Status: p.Status}, nil
	},
	"AuctionStarted": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[struct {
			AuctionID      string `json:"auctionId"`
			LoanID         string `json:"loanId"`
			DomainTokenID  string `json:"domainTokenId"`
			StartingPrice  string `json:"startingPrice"`
			ReservePrice   string `json:"reservePrice"`
			StartTimestamp int64  `json:"startTimestamp"`
			EndTimestamp   int64  `json:"endTimestamp"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return &AuctionStarted{
			Base:           b,
			AuctionID:      p.AuctionID,
			LoanID:         p.LoanID,
			DomainTokenID:  p.DomainTokenID,
			StartingPrice:  p.StartingPrice,
			ReservePrice:   p.ReservePrice,
			StartTimestamp: time.Unix(p.StartTimestamp, 0).UTC(),
			EndTimestamp:   time.Unix(p.EndTimestamp, 0).UTC(),
		}, nil
	},
	"BidPlaced": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[struct {
			AuctionID    string `json:"auctionId"`
			Bidder       string `json:"bidder"`
			BidAmount    string `json:"bidAmount"`
			CurrentPrice string `json:"currentPrice"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return &BidPlaced{Base: b, AuctionID: p.AuctionID, BidderAddress: p.Bidder, BidAmount: p.BidAmount, CurrentPrice: p.CurrentPrice}, nil
	},
	"AuctionEnded": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[struct {
			AuctionID  string `json:"auctionId"`
			Winner     string `json:"winner"`
			FinalPrice string `json:"finalPrice"`
			LoanAmount string `json:"loanAmount"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return &AuctionEnded{Base: b, AuctionID: p.AuctionID, WinnerAddress: p.Winner, FinalPrice: p.FinalPrice, LoanAmount: p.LoanAmount}, nil
	},
	"AuctionCancelled": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[struct {
			AuctionID string `json:"auctionId"`
			Reason    string `json:"reason"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return &AuctionCancelled{Base: b, AuctionID: p.AuctionID, Reason: p.Reason}, nil
	},
	"LoanRequestCreated": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[struct {
			RequestID       string `json:"requestId"`
			Borrower        string `json:"borrower"`
			DomainTokenID   string `json:"domainTokenId"`
			RequestedAmount string `json:"requestedAmount"`
			InterestRate    int64  `json:"interestRate"`
			Duration        int64  `json:"duration"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return &LoanRequestCreated{
			Base:            b,
			RequestID:       p.RequestID,
			BorrowerAddress: p.Borrower,
			DomainTokenID:   p.DomainTokenID,
			RequestedAmount: p.RequestedAmount,
			InterestRate:    p.InterestRate,
			DurationSeconds: p.Duration,
		}, nil
	},
	"LoanRequestFunded": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[struct {
			RequestID     string `json:"requestId"`
			Contributor   string `json:"contributor"`
			Amount        string `json:"amount"`
			TotalFunded   string `json:"totalFunded"`
			IsFullyFunded bool   `json:"isFullyFunded"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return &LoanRequestFunded{Base: b, RequestID: p.RequestID, ContributorAddress: p.Contributor, Amount: p.Amount, TotalFunded: p.TotalFunded, IsFullyFunded: p.IsFullyFunded}, nil
	},
	"LoanRequestCancelled": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[struct {
			RequestID string `json:"requestId"`
			Reason    string `json:"reason"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return &LoanRequestCancelled{Base: b, RequestID: p.RequestID, Reason: p.Reason}, nil
	},
	"SystemPaused": func(b Base, raw json.RawMessage) (Event, error) {
		p, err := unmarshalPayload[struct {
			Actor  string `json:"actor"`
			Paused bool   `json:"paused"`
		}](raw)
		if err != nil {
			return nil, err
		}
		return &SystemPaused{Base: b, Actor: p.Actor, Paused: p.Paused}, nil
	},
}

type collateralPayload struct {
	LoanID        string `json:"loanId"`
	DomainTokenID string `json:"domainTokenId"`
	Borrower      string `json:"borrower"`
}

type liquidityPayload struct {
	PoolID   string `json:"poolId"`
	Provider string `json:"provider"`
	Amount   string `json:"amount"`
}
