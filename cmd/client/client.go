// Command client is a minimal CLI exercising the wire protocol: place
// orders (any kind, including stops), cancel, and query depth/bbo/trades.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fenrir/internal/common"
	fenrirnet "fenrir/internal/net"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "address of the exchange server")
	owner := flag.String("owner", "", "owner username (required for place)")
	action := flag.String("action", "place", "action: place, cancel, depth, bbo, trades")

	symbol := flag.String("symbol", "BTC-USD", "symbol")
	sideStr := flag.String("side", "buy", "buy or sell")
	kindStr := flag.String("kind", "limit", "market, limit, ioc, fok, stop_market, stop_limit, take_profit")
	qty := flag.String("qty", "1", "quantity (decimal string)")
	limitPrice := flag.String("price", "", "limit price (decimal string, required for limit-family kinds)")
	stopPrice := flag.String("stop", "", "stop price (decimal string, required for stop kinds)")

	orderID := flag.String("order-id", "", "order id to cancel (uuid)")
	depthN := flag.Int("n", 10, "depth levels to request")

	flag.Parse()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("connecting to %s: %v", *serverAddr, err)
	}
	defer conn.Close()

	switch strings.ToLower(*action) {
	case "place":
		if *owner == "" {
			fmt.Println("error: -owner is required")
			os.Exit(1)
		}
		req := fenrirnet.NewOrderRequest{
			Symbol: common.Symbol(*symbol),
			Side:   parseSide(*sideStr),
			Kind:   parseKind(*kindStr),
			Owner:  *owner,
		}
		req.Quantity = mustDecimal(*qty)
		if *limitPrice != "" {
			req.HasLimit = true
			req.LimitPrice = mustDecimal(*limitPrice)
		}
		if *stopPrice != "" {
			req.HasStop = true
			req.StopPrice = mustDecimal(*stopPrice)
		}
		if _, err := conn.Write(fenrirnet.EncodeNewOrder(req)); err != nil {
			log.Fatalf("sending order: %v", err)
		}
		readOneFrame(conn)

	case "cancel":
		id, err := uuid.Parse(*orderID)
		if err != nil {
			log.Fatalf("invalid -order-id: %v", err)
		}
		if _, err := conn.Write(fenrirnet.EncodeCancelOrder(common.Symbol(*symbol), id)); err != nil {
			log.Fatalf("sending cancel: %v", err)
		}
		readOneFrame(conn)

	case "depth":
		if _, err := conn.Write(fenrirnet.EncodeGetDepth(common.Symbol(*symbol), *depthN)); err != nil {
			log.Fatalf("sending depth query: %v", err)
		}
		readOneFrame(conn)

	case "bbo":
		if _, err := conn.Write(fenrirnet.EncodeGetBBO(common.Symbol(*symbol))); err != nil {
			log.Fatalf("sending bbo query: %v", err)
		}
		readOneFrame(conn)

	case "trades":
		if _, err := conn.Write(fenrirnet.EncodeGetRecentTrades(common.Symbol(*symbol))); err != nil {
			log.Fatalf("sending trades query: %v", err)
		}
		readOneFrame(conn)

	default:
		log.Fatalf("unknown action: %s", *action)
	}
}

func parseSide(s string) common.Side {
	if strings.ToLower(s) == "sell" {
		return common.Sell
	}
	return common.Buy
}

func parseKind(s string) common.OrderKind {
	switch strings.ToLower(s) {
	case "market":
		return common.Market
	case "ioc":
		return common.IOC
	case "fok":
		return common.FOK
	case "stop_market":
		return common.StopMarket
	case "stop_limit":
		return common.StopLimit
	case "take_profit":
		return common.TakeProfit
	default:
		return common.Limit
	}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Fatalf("invalid decimal %q: %v", s, err)
	}
	return d
}

// readOneFrame reads whatever the server sends back and prints its raw
// length; this CLI is a protocol exerciser, not a full rendering client.
func readOneFrame(conn net.Conn) {
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		log.Fatalf("reading response: %v", err)
	}
	fmt.Printf("received %d bytes: %x\n", n, buf[:n])
}
