package main

import (
	"fmt"
	"log"
	"os"

	"github.com/woozymasta/mapcomp/internal/server"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Output  string `short:"o" long:"out"     description:"Where to write the preview page" default:"index.html"`
	Favicon string `long:"favicon"           description:"Where to write the page icon" default:"favicon.svg"`
	Title   string `short:"t" long:"title"   description:"Page title" default:"mapcomp"`
}

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	page, err := server.BuildIndex(opts.Title)
	if err != nil {
		log.Fatal("error build page:", err)
	}
	if err := os.WriteFile(opts.Output, page, 0644); err != nil {
		log.Fatal(err)
	}

	icon, err := server.BuildFavicon()
	if err != nil {
		log.Fatal("error minify SVG:", err)
	}
	if err := os.WriteFile(opts.Favicon, icon, 0644); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("minify done: %s (%d bytes), %s (%d bytes)\n", opts.Output, len(page), opts.Favicon, len(icon))
}
