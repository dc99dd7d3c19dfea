package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fenrir/internal/book"
	"fenrir/internal/common"
)

// validate checks the request against the rejection reasons listed in
// spec.md §4.3, without touching any lane state.
func (e *Engine) validate(req OrderRequest) (string, error) {
	cfg, ok := e.cfg.Lookup(req.Symbol)
	if !ok {
		return "unknown symbol", common.ErrUnknownSymbol
	}
	if req.Quantity.Sign() <= 0 {
		return "quantity must be positive", common.ErrInvalidRequest
	}
	switch req.Kind {
	case common.Market, common.Limit, common.IOC, common.FOK,
		common.StopMarket, common.StopLimit, common.TakeProfit:
	default:
		return "unknown order kind", common.ErrInvalidRequest
	}
	if req.Kind.RequiresLimitPrice() && !req.HasLimit {
		return "missing limit_price for kind " + req.Kind.String(), common.ErrInvalidRequest
	}
	if req.Kind.RequiresStopPrice() && !req.HasStop {
		return "missing stop_price for kind " + req.Kind.String(), common.ErrInvalidRequest
	}
	if req.HasLimit && !cfg.TickAligned(req.LimitPrice) {
		return "limit_price off tick grid", common.ErrInvalidRequest
	}
	if req.HasStop && !cfg.TickAligned(req.StopPrice) {
		return "stop_price off tick grid", common.ErrInvalidRequest
	}
	return "", nil
}

// submitOnLane runs entirely inside the owning symbol's lane goroutine.
// It implements the matching-dispatch table of spec.md §4.3.
func (l *lane) submitOnLane(req OrderRequest) SubmitResult {
	order := common.Order{
		OrderID:           uuid.New(),
		Symbol:            req.Symbol,
		Side:              req.Side,
		Kind:              req.Kind,
		QuantityOriginal:  req.Quantity,
		QuantityRemaining: req.Quantity,
		AcceptedAt:        time.Now(),
		Owner:             req.Owner,
		Status:            common.Accepted,
	}
	if req.HasLimit {
		order.LimitPrice = req.LimitPrice
		order.HasLimitPrice = true
	}
	if req.HasStop {
		order.StopPrice = req.StopPrice
		order.HasStopPrice = true
	}

	if order.Kind.IsStop() {
		order.Sequence = l.nextSequence()
		l.stops.Arm(order)
		order.Status = common.Armed
		return SubmitResult{Accepted: true, OrderID: order.OrderID, Order: order, Armed: true}
	}

	return l.executeDirect(&order)
}

// executeDirect handles MARKET/LIMIT/IOC/FOK per the table in spec.md §4.3.
// A triggered stop's execution form does not come through here: the
// cascade in lane.onFilled replays it through matchAndSettle directly.
func (l *lane) executeDirect(order *common.Order) SubmitResult {
	trades, deltas, rejectErr, rejectReason := l.matchAndSettle(order)
	if rejectErr != nil {
		return rejected(rejectErr, rejectReason)
	}

	if len(trades) > 0 {
		cascadeTrades, cascadeDeltas, err := l.onFilled(trades[len(trades)-1].Price)
		trades = append(trades, cascadeTrades...)
		deltas = append(deltas, cascadeDeltas...)
		if err != nil {
			l.publish(trades, deltas)
			return SubmitResult{
				Accepted: true, OrderID: order.OrderID, Order: *order,
				Trades: trades, Deltas: deltas, Err: err,
			}
		}
	}
	l.publish(trades, deltas)

	return SubmitResult{Accepted: true, OrderID: order.OrderID, Order: *order, Trades: trades, Deltas: deltas}
}

// matchAndSettle performs one order's sweep against the book and, for a
// resting LIMIT, its insertion — with no cascade triggering. This is the
// primitive the cascade loop (lane.onFilled) replays for each activated
// stop order, so that cascade depth is bounded by wave count rather than
// by call-stack recursion through executeDirect.
func (l *lane) matchAndSettle(order *common.Order) (trades []common.Trade, deltas []common.BookDelta, rejectErr error, rejectReason string) {
	var limitPrice *decimal.Decimal
	if order.HasLimitPrice {
		lp := order.LimitPrice
		limitPrice = &lp
	}

	switch order.Kind {
	case common.Market:
		if _, ok := l.book.BestLevel(order.Side.Opposite()); !ok {
			return nil, nil, common.ErrInsufficientLiquidity, "no opposite liquidity for market order"
		}
	case common.FOK:
		fillable := l.book.MaxFillable(order.Side, order.QuantityRemaining, limitPrice)
		if fillable.LessThan(order.QuantityOriginal) {
			return nil, nil, common.ErrInsufficientLiquidity, "fill-or-kill cannot be fully filled"
		}
	}

	order.Sequence = l.nextSequence()

	fills := l.book.Match(order, limitPrice)
	for i, f := range fills {
		trades = append(trades, l.makeTrade(order, f))
		// The level's aggregate right after this fill: what rests there now
		// plus whatever later fills of this sweep took from the same level.
		agg := l.aggregateAt(f.Maker.Side, f.Price)
		for _, later := range fills[i+1:] {
			if later.Price.Equal(f.Price) {
				agg = agg.Add(later.Quantity)
			}
		}
		deltas = append(deltas, common.BookDelta{
			Symbol:               l.symbol,
			Side:                 f.Maker.Side,
			Price:                f.Price,
			NewAggregateQuantity: agg,
		})
	}

	switch order.Kind {
	case common.Limit:
		if order.Remaining() {
			l.book.AddResting(order)
			deltas = append(deltas, common.BookDelta{
				Symbol:               l.symbol,
				Side:                 order.Side,
				Price:                order.LimitPrice,
				NewAggregateQuantity: l.aggregateAt(order.Side, order.LimitPrice),
			})
		}
	case common.Market, common.IOC, common.FOK:
		if order.Remaining() {
			order.Cancel()
		}
	}

	return trades, deltas, nil, ""
}

func (l *lane) aggregateAt(side common.Side, price decimal.Decimal) decimal.Decimal {
	lvl, ok := l.book.Levels(side).Get(&book.PriceLevel{Price: price})
	if !ok {
		return decimal.Zero
	}
	return lvl.AggregateQuantity()
}

func (l *lane) makeTrade(taker *common.Order, f book.Fill) common.Trade {
	makerFee, takerFee := l.fees.Fees(f.Price, f.Quantity)
	return common.Trade{
		TradeID:      l.nextTradeID(),
		Symbol:       l.symbol,
		Price:        f.Price,
		Quantity:     f.Quantity,
		MakerOrderID: f.Maker.OrderID,
		TakerOrderID: taker.OrderID,
		MakerSide:    f.Maker.Side,
		MakerFee:     makerFee,
		TakerFee:     takerFee,
		Timestamp:    time.Now(),
	}
}

func rejected(err error, reason string) SubmitResult {
	return SubmitResult{Accepted: false, Err: err, RejectReason: reason}
}
