// Package main provides a test client that polls and transfers a zone and
// drives a server's control service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/piwi3910/xfrserver/pkg/control"
)

// Package-level errors.
var (
	ErrUnknownQueryType = errors.New("unknown query type")
)

// Configuration constants for the test client.
const (
	defaultTimeoutSec = 5
	rateLimitDelayMS  = 10
)

type config struct {
	server  string
	zone    string
	qtype   string
	serial  uint
	count   int
	control string
	move    int64
}

func parseFlags() *config {
	cfg := &config{}
	flag.StringVar(&cfg.server, "server", "127.0.0.1:5300", "DNS server address")
	flag.StringVar(&cfg.zone, "zone", "example.com", "Zone to query")
	flag.StringVar(&cfg.qtype, "type", "SOA", "Query type (SOA, AXFR, IXFR)")
	flag.UintVar(&cfg.serial, "serial", 0, "Client serial sent with IXFR")
	flag.IntVar(&cfg.count, "count", 1, "Number of queries to send")
	flag.StringVar(&cfg.control, "control", "", "Control service address; with -move steps the server first")
	flag.Int64Var(&cfg.move, "move", -1, "Serial to move the server to before querying")
	flag.Parse()

	return cfg
}

func main() {
	cfg := parseFlags()

	if cfg.control != "" {
		if err := runControl(cfg); err != nil {
			log.Fatal(err)
		}
	}

	queryType, err := parseQueryType(cfg.qtype)
	if err != nil {
		log.Fatal(err)
	}

	client := createClient(queryType)

	for i := range cfg.count {
		response, rtt, err := performQuery(client, cfg, queryType)
		if err != nil {
			log.Printf("Query %d failed: %v", i+1, err)
			continue
		}

		printQueryResponse(cfg, i, response, rtt)

		if cfg.count > 1 && i < cfg.count-1 {
			time.Sleep(rateLimitDelayMS * time.Millisecond)
		}
	}
}

// runControl optionally moves the server's serial and prints the serial pair.
func runControl(cfg *config) error {
	client, err := control.Dial(cfg.control)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeoutSec*time.Second)
	defer cancel()

	if cfg.move >= 0 {
		changed, err := client.MoveToSerial(ctx, uint32(cfg.move))
		if err != nil {
			return fmt.Errorf("move to serial %d failed: %w", cfg.move, err)
		}
		_, _ = fmt.Fprintf(os.Stdout, "Moved to serial %d (changed: %t)\n", cfg.move, changed)
	}

	current, err := client.CurrentSerial(ctx)
	if err != nil {
		return err
	}
	served, err := client.ServedSerial(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "Current serial: %d, served serial: %d\n", current, served)

	return nil
}

// parseQueryType converts a string query type to DNS type constant.
func parseQueryType(qtype string) (uint16, error) {
	switch strings.ToUpper(qtype) {
	case "SOA":
		return dns.TypeSOA, nil
	case "AXFR":
		return dns.TypeAXFR, nil
	case "IXFR":
		return dns.TypeIXFR, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownQueryType, qtype)
	}
}

// createClient creates a DNS client; transfers go over TCP, SOA polls over UDP.
func createClient(queryType uint16) *dns.Client {
	client := &dns.Client{
		Net:     "udp",
		Timeout: defaultTimeoutSec * time.Second,
	}
	if queryType != dns.TypeSOA {
		client.Net = "tcp"
	}

	return client
}

// performQuery executes a single query.
func performQuery(client *dns.Client, cfg *config, queryType uint16) (*dns.Msg, time.Duration, error) {
	msg := new(dns.Msg)
	zone := dns.Fqdn(cfg.zone)

	if queryType == dns.TypeIXFR {
		msg.SetIxfr(zone, uint32(cfg.serial), "ns."+zone, "hostmaster."+zone)
	} else {
		msg.SetQuestion(zone, queryType)
	}

	response, rtt, err := client.Exchange(msg, cfg.server)
	if err != nil {
		return nil, 0, fmt.Errorf("%s query failed for %s: %w", cfg.qtype, zone, err)
	}

	return response, rtt, nil
}

// printQueryResponse prints the details of a query response.
func printQueryResponse(cfg *config, queryNum int, response *dns.Msg, rtt time.Duration) {
	_, _ = fmt.Fprintf(os.Stdout, "\nQuery %d:\n", queryNum+1)
	_, _ = fmt.Fprintf(os.Stdout, "  Question: %s %s\n", cfg.zone, strings.ToUpper(cfg.qtype))
	_, _ = fmt.Fprintf(os.Stdout, "  RTT: %v\n", rtt)
	_, _ = fmt.Fprintf(os.Stdout, "  Rcode: %s\n", dns.RcodeToString[response.Rcode])

	if len(response.Answer) == 0 {
		_, _ = fmt.Fprintf(os.Stdout, "  No answers\n")
		return
	}

	if soa, ok := response.Answer[0].(*dns.SOA); ok {
		_, _ = fmt.Fprintf(os.Stdout, "  Serial: %d\n", soa.Serial)
	}

	_, _ = fmt.Fprintf(os.Stdout, "  Answers (%d):\n", len(response.Answer))
	for _, answer := range response.Answer {
		_, _ = fmt.Fprintf(os.Stdout, "    %s\n", answer.String())
	}
}
