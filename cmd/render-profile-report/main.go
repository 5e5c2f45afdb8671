package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"devicewatch/internal/profile"
	"devicewatch/internal/report"
)

func main() {
	inputPath := flag.String("input", "", "Path to a saved profile result JSON")
	outputPath := flag.String("output", "", "Path to write rebuilt markdown (defaults to stdout)")
	htmlPath := flag.String("html", "", "Optional path to write a rendered HTML report")
	pdfPath := flag.String("pdf", "", "Optional path to write a rendered PDF report (needs Chrome)")
	title := flag.String("title", "", "Report title (defaults to the profiled device name)")
	flag.Parse()

	if *inputPath == "" {
		log.Fatal("missing required -input")
	}

	in, err := os.ReadFile(*inputPath)
	if err != nil {
		log.Fatalf("read input: %v", err)
	}

	var res profile.Result
	if err := json.Unmarshal(in, &res); err != nil {
		log.Fatalf("decode input JSON: %v", err)
	}

	markdown := report.BuildMarkdown(res, nil)
	if err := writeMarkdown(*outputPath, markdown); err != nil {
		log.Fatalf("write markdown: %v", err)
	}

	if *htmlPath == "" && *pdfPath == "" {
		return
	}

	reportTitle := *title
	if reportTitle == "" {
		reportTitle = res.Profile.DeviceName + " regulatory report"
	}
	if *htmlPath != "" {
		html, err := report.RenderHTML(markdown, reportTitle)
		if err != nil {
			log.Fatalf("render html: %v", err)
		}
		if err := os.WriteFile(*htmlPath, []byte(html), 0o644); err != nil {
			log.Fatalf("write html: %v", err)
		}
	}
	if *pdfPath != "" {
		renderer := report.NewPDFRenderer()
		pdf, err := renderer.Render(context.Background(), markdown, reportTitle)
		if err != nil {
			log.Fatalf("render pdf: %v", err)
		}
		if err := os.WriteFile(*pdfPath, pdf, 0o644); err != nil {
			log.Fatalf("write pdf: %v", err)
		}
		log.Printf("devicewatch report-rendered pdf=%s size=%d", filepath.Base(*pdfPath), len(pdf))
	}
}

func writeMarkdown(outputPath, markdown string) error {
	if outputPath == "" {
		if !strings.HasSuffix(markdown, "\n") {
			markdown += "\n"
		}
		_, err := fmt.Print(markdown)
		return err
	}
	return os.WriteFile(outputPath, []byte(markdown), 0o644)
}
