// ghgctl queries a ghgcast server.
//
// Usage:
//
//	ghgctl --server http://localhost:8080 predict --country PAK --sector transportation --gas n2o
//	ghgctl explain --country PAK --sector power --gas co2 --year 2030 --month 1
//	ghgctl --transport grpc --server localhost:50061 health
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:    "ghgctl",
		Usage:   "Forecast greenhouse gas emissions from a ghgcast server",
		Version: version,
		Writer:  out,

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://localhost:8080",
				Usage:   "Server address (URL for http, host:port for grpc)",
				EnvVars: []string{"GHGCAST_SERVER"},
			},
			&cli.StringFlag{
				Name:    "transport",
				Value:   "http",
				Usage:   "Transport: http or grpc",
				EnvVars: []string{"GHGCAST_TRANSPORT"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: defaultTimeout,
				Usage: "Request timeout",
			},
		},

		Commands: []*cli.Command{
			predictCommand(),
			explainCommand(),
			healthCommand(),
		},
	}
}

func requestFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "country", Aliases: []string{"c"}, Usage: "ISO3 country code", Required: true},
		&cli.StringFlag{Name: "sector", Usage: "Emission sector", Required: true},
		&cli.StringFlag{Name: "gas", Aliases: []string{"g"}, Value: "co2", Usage: "Gas: co2, ch4 or n2o"},
		&cli.IntFlag{Name: "year", Aliases: []string{"y"}, Usage: "Forecast start year (default: current year)"},
		&cli.IntFlag{Name: "month", Aliases: []string{"m"}, Usage: "Forecast start month (default: next month)"},
		&cli.Float64Flag{Name: "lat", Usage: "Latitude (default: country centroid)"},
		&cli.Float64Flag{Name: "lon", Usage: "Longitude (default: country centroid)"},
		&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "table", Usage: "Output format: table or json"},
	}
}

func predictCommand() *cli.Command {
	return &cli.Command{
		Name:   "predict",
		Usage:  "Forecast 12 months of emissions with the gas composition",
		Flags:  requestFlags(),
		Action: runPredict,
	}
}

func explainCommand() *cli.Command {
	return &cli.Command{
		Name:   "explain",
		Usage:  "Show which input features drive the forecast",
		Flags:  requestFlags(),
		Action: runExplain,
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:   "health",
		Usage:  "Check that the server is running",
		Action: runHealth,
	}
}
