// Command godog-protocol checks pages for internal http:// URLs outside of a
// godog suite, either for a single -url or for every row of a CSV file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dennisinteractive/godog-protocol/internal/config"
	"github.com/dennisinteractive/godog-protocol/internal/logging"
	"github.com/dennisinteractive/godog-protocol/internal/scanner"
	"github.com/dennisinteractive/godog-protocol/internal/session"
)

// headerFlags collects repeated -header "Name: value" flags.
type headerFlags map[string]string

func (h headerFlags) String() string {
	pairs := make([]string, 0, len(h))
	for k, v := range h {
		pairs = append(pairs, k+": "+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ", ")
}

func (h headerFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("header %q must look like \"Name: value\"", s)
	}
	h[name] = strings.TrimSpace(value)
	return nil
}

type cliFlags struct {
	configPath   string
	url          string
	inputPath    string
	outputPath   string
	concurrency  int
	timeout      time.Duration
	driver       string
	hosts        string
	headers      headerFlags
	scripts      bool
	scriptPolicy string
	logLevel     string
}

func parseFlags(fs *flag.FlagSet, args []string) (*cliFlags, map[string]bool, error) {
	f := &cliFlags{headers: headerFlags{}}
	fs.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&f.url, "url", "", "check a single page and print the result")
	fs.StringVar(&f.inputPath, "file", "input.csv", "input CSV file containing a url column")
	fs.StringVar(&f.outputPath, "output", "output.csv", "output CSV file path")
	fs.IntVar(&f.concurrency, "concurrency", 0, "maximum pages checked at once")
	fs.DurationVar(&f.timeout, "timeout", 0, "request and navigation timeout")
	fs.StringVar(&f.driver, "driver", "", "session driver: http or chrome")
	fs.StringVar(&f.hosts, "hosts", "", "comma separated extra internal hosts")
	fs.Var(f.headers, "header", `header injected before each check, "Name: value" (repeatable)`)
	fs.BoolVar(&f.scripts, "scripts", false, "also check internal scripts")
	fs.StringVar(&f.scriptPolicy, "script-policy", "", "unreachable scripts: skip or fail")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set, nil
}

// loadConfig reads the configuration file, if any, and lets explicitly set
// flags override it.
func loadConfig(f *cliFlags, set map[string]bool) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return nil, err
		}
	}
	if set["concurrency"] {
		cfg.Concurrency = f.concurrency
	}
	if set["timeout"] {
		cfg.Timeout = f.timeout
	}
	if set["driver"] {
		cfg.Driver = f.driver
	}
	if set["hosts"] {
		cfg.Hosts = nil
		for _, h := range strings.Split(f.hosts, ",") {
			if h = strings.TrimSpace(h); h != "" {
				cfg.Hosts = append(cfg.Hosts, h)
			}
		}
	}
	if len(f.headers) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}
		for k, v := range f.headers {
			cfg.Headers[k] = v
		}
	}
	if set["script-policy"] {
		cfg.ScriptPolicy = f.scriptPolicy
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return cfg, cfg.Validate()
}

func scannerOptions(cfg *config.Config, scripts bool) scanner.Options {
	sessOpts := cfg.SessionOptions()
	return scanner.Options{
		Timeout:      cfg.Timeout,
		InsecureTLS:  cfg.InsecureTLS,
		CheckScripts: scripts,
		Checker:      cfg.CheckerOptions(),
		NewSession: func(ctx context.Context) (session.Session, error) {
			return session.Open(ctx, sessOpts)
		},
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	f, set, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	level, err := logging.ParseLevel(f.logLevel)
	if err != nil {
		log.Fatalf("%v", err)
	}
	logging.SetLogLevel(level)

	cfg, err := loadConfig(f, set)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logging.Infof("config: driver=%s hosts=%v policy=%s concurrency=%d timeout=%s",
		cfg.Driver, cfg.Hosts, cfg.ScriptPolicy, cfg.Concurrency, cfg.Timeout)

	ctx := context.Background()
	opts := scannerOptions(cfg, f.scripts)

	if f.url != "" {
		res := scanner.Process(ctx, scanner.InputRecord{URL: f.url, Raw: []string{f.url}}, opts)
		printResult(res)
		if !res.PassTest {
			os.Exit(1)
		}
		return
	}

	if !runBatch(ctx, f.inputPath, f.outputPath, cfg.Concurrency, opts) {
		os.Exit(1)
	}
}

func printResult(res scanner.Result) {
	switch {
	case res.Error != "":
		fmt.Printf("ERROR %s: %s\n", res.URL, res.Error)
	case res.LeakedURL != "":
		fmt.Printf("FAIL  %s: %s found in %s\n", res.URL, res.LeakedURL, res.LeakPage)
	case !res.PassTest:
		fmt.Printf("SKIP  %s: status %d\n", res.URL, res.ResponseCode)
	default:
		fmt.Printf("PASS  %s\n", res.URL)
	}
}

// runBatch checks every input record with bounded concurrency and reports
// whether all of them passed.
func runBatch(ctx context.Context, inputPath, outputPath string, concurrency int, opts scanner.Options) bool {
	records, header, err := scanner.ReadInput(inputPath, outputPath)
	if err != nil {
		logging.Errorf("read input error: %v", err)
		return false
	}
	logging.Infof("input_records: %d", len(records))
	if len(records) == 0 {
		logging.Infof("no input records to process, exiting")
		return true
	}

	outCh := make(chan scanner.Result)
	writerDone := make(chan struct{})
	go func() {
		scanner.WriteResults(outputPath, header, outCh)
		close(writerDone)
	}()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		passed = true
	)
	sem := make(chan struct{}, concurrency)
	for _, rec := range records {
		wg.Add(1)
		sem <- struct{}{}
		go func(r scanner.InputRecord) {
			defer wg.Done()
			defer func() { <-sem }()
			logging.Debugf("start processing %s", r.URL)
			res := scanner.Process(ctx, r, opts)
			if !res.PassTest {
				mu.Lock()
				passed = false
				mu.Unlock()
			}
			outCh <- res
			logging.Debugf("finish processing %s", r.URL)
		}(rec)
	}

	wg.Wait()
	close(outCh)
	<-writerDone
	logging.Infof("all tasks completed")
	return passed
}
