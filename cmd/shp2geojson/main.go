package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/woozymasta/mapcomp/internal/fetch"
	"github.com/woozymasta/mapcomp/internal/geo"
	"github.com/woozymasta/mapcomp/internal/projection"
	"github.com/woozymasta/mapcomp/internal/shapefile"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

type Options struct {
	Input     string `short:"i" long:"in"         description:"Shapefile directory, zip archive or archive URL" required:"true"`
	Output    string `short:"o" long:"out"        description:"Output file path. Writes to stdout if empty"`
	Format    string `short:"f" long:"format"     description:"Output format" choice:"json" choice:"yaml" default:"json"`
	Layer     string `short:"l" long:"layer"      description:"Shapefile base name when the input holds several"`
	IDColumn  string `long:"id-column"            description:"Attribute column used as feature identifier"`
	SourceCRS string `long:"source-crs"           description:"CRS of the data when the .prj is missing or wrong"`
	CRS       string `short:"t" long:"crs"        description:"Target CRS of the output coordinates" default:"EPSG:4326"`
	WorkDir   string `short:"w" long:"work-dir"   description:"Where remote archives are downloaded and extracted" default:"data"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	dir, err := fetch.New(nil, false).Fetch(context.Background(), opts.Input, opts.WorkDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching input: %v\n", err)
		os.Exit(1)
	}

	coll, attrs, err := shapefile.Load(dir, shapefile.Options{
		Layer:     opts.Layer,
		IDColumn:  opts.IDColumn,
		SourceCRS: opts.SourceCRS,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading shapefile: %v\n", err)
		os.Exit(1)
	}

	target, err := geo.ParseCRS(opts.CRS)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing target CRS: %v\n", err)
		os.Exit(1)
	}
	if coll, err = projection.Project(coll, target); err != nil {
		fmt.Fprintf(os.Stderr, "Error projecting: %v\n", err)
		os.Exit(1)
	}

	outputData, err := marshal(geo.ToGeoJSON(coll, attrs), opts.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling data: %v\n", err)
		os.Exit(1)
	}

	if opts.Output != "" {
		err = os.WriteFile(opts.Output, outputData, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Successfully converted %d features to %s (format: %s)\n", coll.Len(), opts.Output, opts.Format)
	} else {
		fmt.Println(string(outputData))
	}
}

// marshal encodes v as indented JSON, or as YAML through its JSON form.
func marshal(v any, format string) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil || format != "yaml" {
		return data, err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}
