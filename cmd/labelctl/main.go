package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/prepdeck/label-engine/internal/render"
	"github.com/prepdeck/label-engine/pkg/labelformat"
)

const defaultRelayURL = "http://localhost:8137"

func main() {
	var relayURL string
	flag.StringVar(&relayURL, "server", defaultRelayURL, "Relay URL")
	flag.StringVar(&relayURL, "s", defaultRelayURL, "Relay URL (short)")
	flag.Parse()

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}

	args := flag.Args()
	relayURL = strings.TrimSuffix(relayURL, "/")

	var err error
	switch args[0] {
	case "status":
		err = cmdStatus(relayURL)
	case "printers":
		err = cmdPrinters(relayURL)
	case "print":
		err = cmdPrint(relayURL, args[1:])
	case "raw":
		err = cmdRaw(relayURL, args[1:])
	case "jobs":
		err = cmdJobs(relayURL)
	case "cancel":
		err = cmdCancel(relayURL, args[1:])
	case "resubmit":
		err = cmdResubmit(relayURL, args[1:])
	case "discover":
		err = cmdDiscover(relayURL)
	case "preview":
		err = cmdPreview(args[1:])
	case "watch":
		err = cmdWatch(relayURL)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Label Engine CLI

Usage:
  labelctl [flags] <command>

Flags:
  -s, -server <url>    Relay URL (default: %s)

Commands:
  status
    Show relay health and printer reachability

  printers
    List configured printers and available backends

  print <label.json> [--printer <id>] [--station <id>] [--qty <n>]
    Queue a label for printing

  raw <file.zpl> [--copies <n>]
    Push raw ZPL straight to the station printer

  jobs
    List the print queue

  cancel <job-id>
    Cancel a pending job

  resubmit <job-id>
    Re-queue a failed job

  discover
    Scan the network, USB bus and bluetooth for printers

  preview <label.json> [-o <out.png>]
    Render a label to a PNG without printing

  watch
    Live queue view

Examples:
  labelctl print ./hollandaise.json --station pass-1 --qty 3
  labelctl raw ./test.zpl --copies 2
  labelctl preview ./hollandaise.json -o preview.png
  labelctl -s http://192.168.1.20:8137 jobs

`, defaultRelayURL)
}

func cmdStatus(relayURL string) error {
	health, err := getJSON(relayURL + "/health")
	if err != nil {
		return err
	}
	fmt.Printf("Relay:   %v (printer %v)\n", health["status"], health["printer_ip"])
	if degraded, ok := health["degraded"].(bool); ok && degraded {
		fmt.Println("         ⚠️ queue persistence degraded")
	}

	status, err := getJSON(relayURL + "/printer-status")
	if err != nil {
		return err
	}
	if online, _ := status["online"].(bool); online {
		fmt.Printf("Printer: online, port %v, %vms\n", status["port"], status["latency_ms"])
	} else {
		fmt.Printf("Printer: offline (%v)\n", status["error"])
	}
	return nil
}

func cmdPrinters(relayURL string) error {
	resp, err := getJSON(relayURL + "/printers")
	if err != nil {
		return err
	}

	printers, _ := resp["printers"].([]interface{})
	if len(printers) == 0 {
		fmt.Println("No printers configured.")
		return nil
	}

	fmt.Println("Printers:")
	for _, p := range printers {
		printer, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		marker := " "
		if isDefault, _ := printer["isDefault"].(bool); isDefault {
			marker = "*"
		}
		addr := printer["host"]
		if addr == nil || addr == "" {
			addr = printer["deviceAddress"]
		}
		fmt.Printf("%s %s: %s (%s, %v)\n", marker, printer["id"], printer["name"], printer["connectionType"], addr)
	}
	return nil
}

func cmdPrint(relayURL string, args []string) error {
	fs := flag.NewFlagSet("print", flag.ExitOnError)
	printerID := fs.String("printer", "", "Target printer id")
	stationID := fs.String("station", "", "Station id (uses its default printer)")
	qty := fs.Int("qty", 1, "Number of labels")
	priority := fs.Int("priority", 0, "Queue priority")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: print <label.json> [--printer id] [--station id] [--qty n]")
	}

	label, err := labelformat.ParseFile(fs.Arg(0))
	if err != nil {
		return err
	}

	resp, err := postJSON(relayURL+"/labels", map[string]interface{}{
		"label":      label,
		"printer_id": *printerID,
		"station_id": *stationID,
		"quantity":   *qty,
		"priority":   *priority,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Queued job %v\n", resp["job_id"])
	return nil
}

func cmdRaw(relayURL string, args []string) error {
	fs := flag.NewFlagSet("raw", flag.ExitOnError)
	copies := fs.Int("copies", 1, "Number of copies")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: raw <file.zpl> [--copies n]")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	resp, err := postJSON(relayURL+"/print", map[string]interface{}{
		"zpl":    string(data),
		"copies": *copies,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Printed %v copies via %v (port %v, %vms)\n",
		resp["copies"], resp["method"], resp["port"], resp["latency_ms"])
	return nil
}

func cmdJobs(relayURL string) error {
	resp, err := getJSON(relayURL + "/jobs")
	if err != nil {
		return err
	}

	jobs, _ := resp["jobs"].([]interface{})
	if len(jobs) == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}

	fmt.Println("Jobs:")
	for _, j := range jobs {
		job, ok := j.(map[string]interface{})
		if !ok {
			continue
		}
		qty := 1
		if q, ok := job["quantity"].(float64); ok {
			qty = int(q)
		}
		line := fmt.Sprintf("  %s: %s ×%d  %s", job["id"], job["productName"], qty, job["status"])
		if errMsg, ok := job["error"].(string); ok && errMsg != "" {
			line += fmt.Sprintf("  (%s)", errMsg)
		}
		fmt.Println(line)
	}
	return nil
}

func cmdCancel(relayURL string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: cancel <job-id>")
	}
	if _, err := deleteJSON(relayURL + "/job/" + args[0]); err != nil {
		return err
	}
	fmt.Println("Cancelled.")
	return nil
}

func cmdResubmit(relayURL string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: resubmit <job-id>")
	}
	resp, err := postJSON(relayURL+"/job/"+args[0]+"/resubmit", nil)
	if err != nil {
		return err
	}
	fmt.Printf("Re-queued as %v\n", resp["job_id"])
	return nil
}

func cmdDiscover(relayURL string) error {
	fmt.Println("Scanning (this can take a few seconds)...")
	resp, err := getJSON(relayURL + "/discover")
	if err != nil {
		return err
	}

	printers, _ := resp["printers"].([]interface{})
	if len(printers) == 0 {
		fmt.Println("No printers found.")
		return nil
	}

	for _, p := range printers {
		printer, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Printf("  [%s] %s\n", printer["source"], printer["description"])
	}
	return nil
}

func cmdPreview(args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	out := fs.String("o", "preview.png", "Output PNG path")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: preview <label.json> [-o out.png]")
	}

	label, err := labelformat.ParseFile(fs.Arg(0))
	if err != nil {
		return err
	}

	img, err := render.Raster(label, labelformat.DefaultMedia)
	if err != nil {
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", *out)
	return nil
}

func getJSON(url string) (map[string]interface{}, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to reach relay: %v", err)
	}
	return decodeResponse(resp)
}

func postJSON(url string, body interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to reach relay: %v", err)
	}
	return decodeResponse(resp)
}

func deleteJSON(url string) (map[string]interface{}, error) {
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach relay: %v", err)
	}
	return decodeResponse(resp)
}

func decodeResponse(resp *http.Response) (map[string]interface{}, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %v", err)
	}

	if resp.StatusCode >= 400 {
		if msg, ok := result["error"].(string); ok {
			return nil, fmt.Errorf("%s (HTTP %s)", msg, strconv.Itoa(resp.StatusCode))
		}
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return result, nil
}
