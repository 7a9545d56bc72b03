package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/moznion/go-optional"
	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v3"

	"github.com/quantra-lab/futuresbot/internal/bracket"
	"github.com/quantra-lab/futuresbot/internal/exchange"
	"github.com/quantra-lab/futuresbot/internal/logger"
	"github.com/quantra-lab/futuresbot/internal/orders"
	"github.com/quantra-lab/futuresbot/internal/quantize"
	"github.com/quantra-lab/futuresbot/internal/twap"
	"github.com/quantra-lab/futuresbot/internal/types"
	"github.com/quantra-lab/futuresbot/pkg/utils"
)

// deps bundles the collaborators every trading command needs.
type deps struct {
	config  *exchange.Config
	log     *logger.Logger
	gateway exchange.Gateway
}

// withGateway loads config, opens the audit log and connects the
// gateway before running the command's action.
func withGateway(action func(ctx context.Context, cmd *cli.Command, d *deps) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		config, err := exchange.LoadConfig(cmd.String("config"))
		if err != nil {
			return err
		}

		log, err := logger.NewRotatingLogger(config.LogPath)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		gateway, err := exchange.NewBinanceGateway(ctx, *config, log)
		if err != nil {
			return err
		}

		return action(ctx, cmd, &deps{config: config, log: log, gateway: gateway})
	}
}

func symbolFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "symbol",
		Aliases:  []string{"s"},
		Usage:    "Futures symbol, e.g. BTCUSDT",
		Required: required,
	}
}

func sideFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "side",
		Usage:    "Order side: BUY or SELL",
		Required: true,
	}
}

func qtyFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "qty",
		Aliases:  []string{"q"},
		Usage:    "Order quantity in base asset",
		Required: true,
	}
}

func marketCommand() *cli.Command {
	return &cli.Command{
		Name:  "market",
		Usage: "Place a market order",
		Flags: []cli.Flag{symbolFlag(true), sideFlag(), qtyFlag()},
		Action: withGateway(func(ctx context.Context, cmd *cli.Command, d *deps) error {
			side, err := quantize.ValidateSide(cmd.String("side"))
			if err != nil {
				return err
			}

			qty, err := quantize.ValidatePositiveNumber("qty", cmd.String("qty"))
			if err != nil {
				return err
			}

			order, err := orders.New(d.gateway, d.log).PlaceMarket(ctx, cmd.String("symbol"), side, qty)
			if err != nil {
				return err
			}

			fmt.Println(renderOrder("Market order placed", order))

			return nil
		}),
	}
}

func limitCommand() *cli.Command {
	return &cli.Command{
		Name:  "limit",
		Usage: "Place a GTC limit order",
		Flags: []cli.Flag{
			symbolFlag(true), sideFlag(), qtyFlag(),
			&cli.StringFlag{Name: "price", Aliases: []string{"p"}, Usage: "Limit price", Required: true},
		},
		Action: withGateway(func(ctx context.Context, cmd *cli.Command, d *deps) error {
			side, err := quantize.ValidateSide(cmd.String("side"))
			if err != nil {
				return err
			}

			qty, err := quantize.ValidatePositiveNumber("qty", cmd.String("qty"))
			if err != nil {
				return err
			}

			price, err := quantize.ValidatePositiveNumber("price", cmd.String("price"))
			if err != nil {
				return err
			}

			order, err := orders.New(d.gateway, d.log).PlaceLimit(ctx, cmd.String("symbol"), side, qty, price)
			if err != nil {
				return err
			}

			fmt.Println(renderOrder("Limit order placed", order))

			return nil
		}),
	}
}

func stopLimitCommand() *cli.Command {
	return &cli.Command{
		Name:  "stop-limit",
		Usage: "Place a stop-limit order",
		Flags: []cli.Flag{
			symbolFlag(true), sideFlag(), qtyFlag(),
			&cli.StringFlag{Name: "stop-price", Usage: "Trigger price", Required: true},
			&cli.StringFlag{Name: "limit-price", Usage: "Limit price once triggered", Required: true},
			&cli.StringFlag{Name: "tif", Usage: "Time in force (GTC, IOC, FOK)", Value: "GTC"},
			&cli.BoolFlag{Name: "reduce-only", Usage: "Only reduce an existing position"},
		},
		Action: withGateway(func(ctx context.Context, cmd *cli.Command, d *deps) error {
			side, err := quantize.ValidateSide(cmd.String("side"))
			if err != nil {
				return err
			}

			qty, err := quantize.ValidatePositiveNumber("qty", cmd.String("qty"))
			if err != nil {
				return err
			}

			stopPrice, err := quantize.ValidatePositiveNumber("stop-price", cmd.String("stop-price"))
			if err != nil {
				return err
			}

			limitPrice, err := quantize.ValidatePositiveNumber("limit-price", cmd.String("limit-price"))
			if err != nil {
				return err
			}

			order, err := orders.New(d.gateway, d.log).PlaceStopLimit(ctx, cmd.String("symbol"), side,
				qty, stopPrice, limitPrice, types.TimeInForce(cmd.String("tif")), cmd.Bool("reduce-only"))
			if err != nil {
				return err
			}

			fmt.Println(renderOrder("Stop-limit order placed", order))

			return nil
		}),
	}
}

func stopMarketCommand() *cli.Command {
	return &cli.Command{
		Name:  "stop-market",
		Usage: "Place a stop-market order",
		Flags: []cli.Flag{
			symbolFlag(true), sideFlag(),
			&cli.StringFlag{Name: "qty", Aliases: []string{"q"}, Usage: "Order quantity (ignored with --close-position)"},
			&cli.StringFlag{Name: "stop-price", Usage: "Trigger price", Required: true},
			&cli.BoolFlag{Name: "close-position", Usage: "Flatten the whole position on trigger"},
		},
		Action: withGateway(func(ctx context.Context, cmd *cli.Command, d *deps) error {
			side, err := quantize.ValidateSide(cmd.String("side"))
			if err != nil {
				return err
			}

			stopPrice, err := quantize.ValidatePositiveNumber("stop-price", cmd.String("stop-price"))
			if err != nil {
				return err
			}

			closePosition := cmd.Bool("close-position")

			qty := decimal.Zero
			if !closePosition {
				qty, err = quantize.ValidatePositiveNumber("qty", cmd.String("qty"))
				if err != nil {
					return err
				}
			}

			order, err := orders.New(d.gateway, d.log).PlaceStopMarket(ctx, cmd.String("symbol"), side,
				qty, stopPrice, closePosition)
			if err != nil {
				return err
			}

			fmt.Println(renderOrder("Stop-market order placed", order))

			return nil
		}),
	}
}

func ocoCommand() *cli.Command {
	return &cli.Command{
		Name:  "oco",
		Usage: "Place a bracket: entry plus racing take-profit and stop-loss legs",
		Flags: []cli.Flag{
			symbolFlag(true), sideFlag(), qtyFlag(),
			&cli.StringFlag{Name: "tp-price", Usage: "Take-profit price", Required: true},
			&cli.StringFlag{Name: "sl-price", Usage: "Stop-loss price", Required: true},
			&cli.StringFlag{Name: "entry-type", Usage: "Entry order type: MARKET or LIMIT", Value: "MARKET"},
			&cli.StringFlag{Name: "entry-price", Usage: "Entry price, required for LIMIT entry"},
			&cli.DurationFlag{Name: "wait-time", Usage: "How long to wait for the entry fill and the leg race", Value: bracket.DefaultWaitTimeout},
			&cli.DurationFlag{Name: "poll-interval", Usage: "Order poll interval", Value: bracket.DefaultPollInterval},
			&cli.BoolFlag{Name: "detach", Usage: "Place entry and legs, skip fill-wait and race monitoring"},
		},
		Action: withGateway(func(ctx context.Context, cmd *cli.Command, d *deps) error {
			side, err := quantize.ValidateSide(cmd.String("side"))
			if err != nil {
				return err
			}

			qty, err := quantize.ValidatePositiveNumber("qty", cmd.String("qty"))
			if err != nil {
				return err
			}

			tpPrice, err := quantize.ValidatePositiveNumber("tp-price", cmd.String("tp-price"))
			if err != nil {
				return err
			}

			slPrice, err := quantize.ValidatePositiveNumber("sl-price", cmd.String("sl-price"))
			if err != nil {
				return err
			}

			request := bracket.Request{
				Symbol:          cmd.String("symbol"),
				Side:            side,
				Quantity:        qty,
				TakeProfitPrice: tpPrice,
				StopLossPrice:   slPrice,
				EntryType:       bracket.EntryType(cmd.String("entry-type")),
				WaitTimeout:     cmd.Duration("wait-time"),
				PollInterval:    cmd.Duration("poll-interval"),
				Detach:          cmd.Bool("detach"),
			}

			if raw := cmd.String("entry-price"); raw != "" {
				entryPrice, priceErr := quantize.ValidatePositiveNumber("entry-price", raw)
				if priceErr != nil {
					return priceErr
				}

				request.EntryPrice = optional.Some(entryPrice)
			}

			result, err := bracket.New(d.gateway, d.log).Execute(ctx, request)
			if err != nil {
				return err
			}

			fmt.Println(renderBracketResult(result))

			return nil
		}),
	}
}

func twapCommand() *cli.Command {
	return &cli.Command{
		Name:  "twap",
		Usage: "Split a quantity into equal market slices over time",
		Flags: []cli.Flag{
			symbolFlag(true), sideFlag(), qtyFlag(),
			&cli.IntFlag{Name: "parts", Usage: "Number of slices", Value: 10},
			&cli.DurationFlag{Name: "interval", Usage: "Delay between slices", Value: 10 * time.Second},
		},
		Action: withGateway(func(ctx context.Context, cmd *cli.Command, d *deps) error {
			side, err := quantize.ValidateSide(cmd.String("side"))
			if err != nil {
				return err
			}

			qty, err := quantize.ValidatePositiveNumber("qty", cmd.String("qty"))
			if err != nil {
				return err
			}

			parts := int(cmd.Int("parts"))

			executor := twap.New(d.gateway, d.log)
			bar := progressbar.Default(int64(parts), "twap")
			executor.OnSlice = func(int, int) { _ = bar.Add(1) }

			result, err := executor.Execute(ctx, twap.Request{
				Symbol:   cmd.String("symbol"),
				Side:     side,
				TotalQty: qty,
				Parts:    parts,
				Interval: cmd.Duration("interval"),
			})
			if err != nil {
				return err
			}

			fmt.Println(renderTwapResult(result))

			return nil
		}),
	}
}

func openOrdersCommand() *cli.Command {
	return &cli.Command{
		Name:  "open-orders",
		Usage: "List open orders",
		Flags: []cli.Flag{symbolFlag(false)},
		Action: withGateway(func(ctx context.Context, cmd *cli.Command, d *deps) error {
			open, err := d.gateway.GetOpenOrders(ctx, cmd.String("symbol"))
			if err != nil {
				return err
			}

			fmt.Println(renderOrders(open))

			return nil
		}),
	}
}

func cancelAllCommand() *cli.Command {
	return &cli.Command{
		Name:  "cancel-all",
		Usage: "Cancel every open order on a symbol",
		Flags: []cli.Flag{symbolFlag(true)},
		Action: withGateway(func(ctx context.Context, cmd *cli.Command, d *deps) error {
			summary, err := orders.New(d.gateway, d.log).CancelAll(ctx, cmd.String("symbol"))
			if err != nil {
				return err
			}

			fmt.Printf("Cancelled %d order(s), %d failed\n", summary.Cancelled, summary.Failed)

			return nil
		}),
	}
}

func cancelOrderCommand() *cli.Command {
	return &cli.Command{
		Name:  "cancel-order",
		Usage: "Cancel one order by ID or client order ID",
		Flags: []cli.Flag{
			symbolFlag(true),
			&cli.IntFlag{Name: "order-id", Usage: "Exchange order ID"},
			&cli.StringFlag{Name: "client-order-id", Usage: "Client order ID"},
		},
		Action: withGateway(func(ctx context.Context, cmd *cli.Command, d *deps) error {
			orderID := cmd.Int("order-id")
			clientOrderID := cmd.String("client-order-id")

			if orderID == 0 && clientOrderID == "" {
				return cli.Exit("either --order-id or --client-order-id is required", 2)
			}

			var (
				order types.Order
				err   error
			)

			if orderID != 0 {
				order, err = d.gateway.CancelOrder(ctx, cmd.String("symbol"), orderID)
			} else {
				order, err = d.gateway.CancelOrderByClientID(ctx, cmd.String("symbol"), clientOrderID)
			}

			if err != nil {
				return err
			}

			fmt.Println(renderOrder("Order cancelled", order))

			return nil
		}),
	}
}

func inspectPosCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-pos",
		Usage: "Show open positions",
		Action: withGateway(func(ctx context.Context, cmd *cli.Command, d *deps) error {
			positions, err := d.gateway.GetPositions(ctx)
			if err != nil {
				return err
			}

			fmt.Println(renderPositions(positions))

			return nil
		}),
	}
}

func filtersCommand() *cli.Command {
	return &cli.Command{
		Name:  "filters",
		Usage: "Show exchange trading filters for a symbol",
		Flags: []cli.Flag{symbolFlag(true)},
		Action: withGateway(func(ctx context.Context, cmd *cli.Command, d *deps) error {
			filters, err := d.gateway.GetSymbolFilters(ctx, cmd.String("symbol"))
			if err != nil {
				return err
			}

			fmt.Println(renderFilters(cmd.String("symbol"), filters))

			return nil
		}),
	}
}

func authCheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth-check",
		Usage: "Verify API credentials against the exchange",
		Action: withGateway(func(ctx context.Context, cmd *cli.Command, d *deps) error {
			if err := d.gateway.CheckConnection(ctx); err != nil {
				return err
			}

			positions, err := d.gateway.GetPositions(ctx)
			if err != nil {
				return err
			}

			open := 0
			for _, position := range positions {
				if !position.Amount.IsZero() {
					open++
				}
			}

			fmt.Printf("Credentials OK (%s), %d open position(s)\n", d.config.BaseURL, open)

			return nil
		}),
	}
}

func configSchemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "config-schema",
		Usage: "Print the JSON schema of the config file",
		Action: func(_ context.Context, _ *cli.Command) error {
			schema, err := utils.GetSchemaFromConfig(exchange.Config{})
			if err != nil {
				return err
			}

			fmt.Println(schema)

			return nil
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "futuresbot",
		Usage: "Binance USDT-M futures testnet trading assistant",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file; environment variables override it",
			},
		},
		Commands: []*cli.Command{
			marketCommand(),
			limitCommand(),
			stopLimitCommand(),
			stopMarketCommand(),
			ocoCommand(),
			twapCommand(),
			openOrdersCommand(),
			cancelAllCommand(),
			cancelOrderCommand(),
			inspectPosCommand(),
			filtersCommand(),
			authCheckCommand(),
			configSchemaCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)

		code := 1

		var coder cli.ExitCoder
		if stderrors.As(err, &coder) {
			code = coder.ExitCode()
		}

		os.Exit(code)
	}
}
