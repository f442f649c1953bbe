// Command versatiles-probe is a thin smoke-test/demo binary exercising the
// core's open/probe/convert surface end to end. It is not the CLI proper —
// flag/argument parsing is intentionally minimal, matching the teacher's
// own cmd/*/main.go style (flag.StringVar, plain log.Printf), since the
// full command-line tool is an external collaborator (spec.md §1, §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/versatiles-org/versatiles-go/internal/cog"
	"github.com/versatiles-org/versatiles-go/internal/container"
	"github.com/versatiles-org/versatiles-go/internal/container/mbtiles"
	"github.com/versatiles-org/versatiles-go/internal/convert"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/ops"
	"github.com/versatiles-org/versatiles-go/internal/runtime"
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/vlog"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		cmd         string
		inputPath   string
		inputVPL    string
		outputPath  string
		z, x, y     int
		verbose     bool
		showVersion bool
		concurrency int
	)

	flag.StringVar(&cmd, "cmd", "probe", "Command to run: probe, get-tile, convert, cog-info")
	flag.StringVar(&inputPath, "in", "", "Input .versatiles/.mbtiles path")
	flag.StringVar(&inputVPL, "vpl", "", "VPL pipeline text (overrides -in when set)")
	flag.StringVar(&outputPath, "out", "", "Output .mbtiles path for -cmd=convert")
	flag.IntVar(&z, "z", 0, "Zoom for -cmd=get-tile")
	flag.IntVar(&x, "x", 0, "Column for -cmd=get-tile")
	flag.IntVar(&y, "y", 0, "Row for -cmd=get-tile")
	flag.BoolVar(&verbose, "verbose", false, "Verbose logging")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.IntVar(&concurrency, "concurrency", 0, "Worker count for -cmd=convert (0 = NumCPU)")
	flag.Parse()

	if showVersion {
		fmt.Printf("versatiles-probe %s (%s)\n", version, commit)
		return
	}
	vlog.SetVerbose(verbose)

	if cmd == "cog-info" {
		if inputPath == "" {
			log.Fatal("-in is required for -cmd=cog-info")
		}
		runCogInfo(inputPath)
		return
	}

	reader, err := openReader(inputPath, inputVPL)
	if err != nil {
		log.Fatalf("open: %v", err)
	}

	switch cmd {
	case "probe":
		runProbe(reader)
	case "get-tile":
		runGetTile(reader, uint8(z), uint32(x), uint32(y))
	case "convert":
		if outputPath == "" {
			log.Fatal("-out is required for -cmd=convert")
		}
		runConvert(reader, outputPath, concurrency)
	default:
		log.Fatalf("unknown -cmd %q (supported: probe, get-tile, convert, cog-info)", cmd)
	}
}

// runCogInfo dumps a Cloud-Optimized-GeoTIFF's IFD pyramid, adapted from the
// teacher's standalone coginfo tool onto the shared cog.Reader (internal/cog,
// also used by from_gdal_raster) rather than a separate main package.
func runCogInfo(path string) {
	r, err := cog.Open(path)
	if err != nil {
		log.Fatalf("cog-info: opening %s: %v", path, err)
	}
	defer r.Close()

	fmt.Printf("file:          %s\n", path)
	fmt.Printf("epsg:          %d\n", r.EPSG())
	fmt.Printf("full-res size: %d x %d\n", r.Width(), r.Height())
	fmt.Printf("pixel size:    %f (CRS units)\n", r.PixelSize())
	fmt.Printf("ifd count:     %d (1 full-res + %d overviews)\n", r.IFDCount(), r.NumOverviews())

	minX, minY, maxX, maxY := r.BoundsInCRS()
	fmt.Printf("bounds (CRS):  X=[%f, %f], Y=[%f, %f]\n", minX, maxX, minY, maxY)

	for level := 0; level < r.IFDCount(); level++ {
		ts := r.IFDTileSize(level)
		fmt.Printf("  ifd %d: %dx%d, tile %dx%d, pixel size=%f\n",
			level, r.IFDWidth(level), r.IFDHeight(level), ts[0], ts[1], r.IFDPixelSize(level))
	}
}

// openReader implements the "open(path_or_url)" / "build_pipeline(vpl_text,
// base_dir)" surfaces of spec.md §6, minus extension/scheme dispatch (an
// external CLI's job): -vpl parses and builds a pipeline; -in opens a
// native container directly.
func openReader(inputPath, inputVPL string) (source.Reader, error) {
	if inputVPL != "" {
		pipeline, err := vpl.Parse(inputVPL)
		if err != nil {
			return nil, fmt.Errorf("parsing VPL: %w", err)
		}
		if err := vpl.Validate(pipeline, ops.Registry()); err != nil {
			return nil, fmt.Errorf("validating VPL: %w", err)
		}
		ctx := &ops.BuildContext{BaseDir: "."}
		return ops.Build(pipeline, ctx)
	}
	if inputPath == "" {
		return nil, fmt.Errorf("one of -in or -vpl is required")
	}
	return container.OpenFile(inputPath)
}

// runProbe implements the "probe(reader) -> SourceMetadata + SourceType" surface.
func runProbe(reader source.Reader) {
	meta := reader.Metadata()
	st := reader.SourceType()
	minZoom, maxZoom, ok := reader.BBoxPyramid().MinMaxZoom()
	fmt.Printf("source:      %s\n", st.Name)
	fmt.Printf("format:      %s\n", meta.TileFormat.String())
	fmt.Printf("compression: %s\n", meta.TileCompression.String())
	if ok {
		fmt.Printf("zoom range:  %d - %d\n", minZoom, maxZoom)
	} else {
		fmt.Printf("zoom range:  (empty pyramid)\n")
	}
	fmt.Printf("tile count:  %d\n", reader.BBoxPyramid().Count())
	fmt.Printf("tilejson:    %s / %s\n", meta.TileJSON.Name, meta.TileJSON.Description)
}

// runGetTile implements the "get_tile(z,x,y) -> Option<Blob>" surface.
func runGetTile(reader source.Reader, z uint8, x, y uint32) {
	c, err := coord.NewTileCoord(z, x, y)
	if err != nil {
		log.Fatalf("invalid coordinate: %v", err)
	}
	data, ok, err := reader.GetTile(context.Background(), c)
	if err != nil {
		log.Fatalf("get_tile: %v", err)
	}
	if !ok {
		fmt.Println("(no tile at this coordinate)")
		return
	}
	fmt.Printf("%d bytes\n", data.Len())
}

// runConvert implements the "convert(reader, path_or_writer, options, ...)"
// surface against an MBTiles destination, printing a final summary line in
// the style of the teacher's Generate/Stats reporting.
func runConvert(reader source.Reader, outputPath string, concurrency int) {
	meta := reader.Metadata()
	writer, err := mbtiles.Create(outputPath, mbtiles.WriterOptions{
		Name:     meta.TileJSON.Name,
		Format:   meta.TileFormat,
		TileJSON: meta.TileJSON,
	})
	if err != nil {
		log.Fatalf("creating writer: %v", err)
	}

	bus := runtime.NewBus()
	go drainBus(bus)

	start := time.Now()
	result, err := convert.Convert(context.Background(), reader, writer, convert.Options{
		Workers: concurrency,
		Bus:     bus,
	})
	bus.Close()
	if err != nil {
		log.Fatalf("convert: %v", err)
	}
	fmt.Printf("wrote %d tiles (%d skipped) in %s\n", result.TilesWritten, result.TilesSkipped, time.Since(start).Truncate(time.Millisecond))
}

func drainBus(bus *runtime.Bus) {
	for e := range bus.Subscribe() {
		switch e.Kind {
		case runtime.EventStep:
			vlog.Infof("%s", e.Message)
		case runtime.EventProgress:
			vlog.Debugf("%s", e.Progress.Summary())
		case runtime.EventWarning:
			vlog.Warnf("%s", e.Message)
		case runtime.EventError:
			vlog.Errorf("%s", e.Message)
		case runtime.EventComplete:
			vlog.Infof("done")
		}
	}
}

