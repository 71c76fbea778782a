package main

////////////////////////////////////////////////////////////////////////////////

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"

	"github.com/deniz-dilaverler/pngrepair"
)

////////////////////////////////////////////////////////////////////////////////

var (
	inputFile   string
	outputFile  string
	yes         bool
	no          bool
	workers     int
	budget      int
	ihdrBudget  int
	info        bool
	payload     string
	payloadName string
	way         int
	zlibFile    string
	extractFile string
	exportDir   string
	thumb       uint
	verbose     bool

	stdin = bufio.NewReader(os.Stdin)
)

////////////////////////////////////////////////////////////////////////////////

func main() {
	log.SetHandler(cli.New(os.Stderr))
	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	var err error
	switch {
	case zlibFile != "":
		err = bruteForce()
	case inputFile == "":
		flag.Usage()
		os.Exit(2)
	case info:
		err = describe()
	case payload != "":
		err = inject()
	default:
		err = repair()
	}
	if err != nil {
		log.WithError(err).Error("failed")
		os.Exit(1)
	}
}

func ask(f pngrepair.Finding) bool {
	fmt.Fprintf(os.Stderr, "%s\nTry fixing it? (y or n) [default:y] ", f)
	line, _ := stdin.ReadString('\n')
	line = strings.TrimSpace(line)
	return line == "" || line == "y"
}

func repair() error {
	opts := pngrepair.Options{
		Policy:            pngrepair.AskUser,
		Ask:               ask,
		Workers:           workers,
		MaxCombinations:   budget,
		MaxIHDRCandidates: ihdrBudget,
		Logger:            log.Log,
	}
	switch {
	case yes:
		opts.Policy = pngrepair.AutoFix
	case no:
		opts.Policy = pngrepair.Reject
	}

	res, err := pngrepair.New(opts).RepairFile(context.Background(), inputFile)
	if err != nil {
		return err
	}
	for _, f := range res.Findings {
		fmt.Println(f)
	}
	if err := os.WriteFile(outputFile, res.Output, 0o644); err != nil {
		return err
	}
	fmt.Printf("Repaired image written to '%s'\n", outputFile)

	if res.Trailing.Len() > 0 {
		fmt.Printf("Trailing data: %s\n", res.Trailing)
		if extractFile != "" {
			f, err := os.Create(extractFile)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := res.Trailing.WriteTo(f); err != nil {
				return err
			}
			fmt.Printf("Trailing data written to '%s'\n", extractFile)
		}
	}
	return nil
}

func describe() error {
	data, err := os.ReadFile(inputFile)
	if err != nil {
		return err
	}
	i, err := pngrepair.Describe(data)
	if i != nil {
		fmt.Print(i)
	}
	return err
}

func inject() error {
	data, err := os.ReadFile(inputFile)
	if err != nil {
		return err
	}
	var inj *pngrepair.Injection
	switch way {
	case 1:
		inj, err = pngrepair.InjectAncillary(data, payloadName, []byte(payload))
	case 2:
		inj, err = pngrepair.InjectCritical(data, []byte(payload))
	default:
		return fmt.Errorf("unknown way %d", way)
	}
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"name": inj.Name, "offset": inj.Offset}).Info("payload chunk")
	return os.WriteFile(outputFile, inj.Output, 0o644)
}

func bruteForce() error {
	data, err := os.ReadFile(zlibFile)
	if err != nil {
		return err
	}
	stream, err := pngrepair.Inflate([][]byte{data})
	if err != nil && len(stream) == 0 {
		return err
	}
	if err != nil {
		log.WithError(err).Warn("using partial stream")
	}
	decoded, err := pngrepair.BruteForce(context.Background(), stream)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	paths, err := pngrepair.ExportCandidates(exportDir, decoded, thumb)
	if err != nil {
		return err
	}
	fmt.Printf("%d candidates written to '%s'\n", len(paths), exportDir)
	return nil
}

func init() {
	flag.StringVar(&inputFile, "input", "", "input file name for the png")
	flag.StringVar(&outputFile, "output", "output.png", "output file name for the png")
	flag.BoolVar(&yes, "yes", false, "apply every repair without asking")
	flag.BoolVar(&no, "no", false, "report problems but apply no repair")
	flag.IntVar(&workers, "workers", 1, "goroutines used by the repair searches")
	flag.IntVar(&budget, "budget", 0, "max line feed combinations tried per IDAT chunk (0 = default)")
	flag.IntVar(&ihdrBudget, "ihdr-budget", 0, "max IHDR width or height values tried (0 = default)")
	flag.BoolVar(&info, "info", false, "show the image information")
	flag.StringVar(&payload, "payload", "", "payload to hide")
	flag.StringVar(&payloadName, "name", "", "payload chunk name (default: random)")
	flag.IntVar(&way, "way", 1, "payload chunk: 1 ancillary, 2 critical")
	flag.StringVar(&zlibFile, "decompress", "", "zlib data file to brute force")
	flag.StringVar(&extractFile, "extract", "", "file to write data found after IEND")
	flag.StringVar(&exportDir, "export", "tmp", "directory for brute force candidates")
	flag.UintVar(&thumb, "thumb", 0, "shrink brute force candidates to fit this many pixels per side (0 = full size)")
	flag.BoolVar(&verbose, "v", false, "debug logging")

	flag.Parse()
}
