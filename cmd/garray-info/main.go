// garray-info prints the decomposition a configuration would produce: the
// chosen locale mesh, and the per-tile table of authoritative boxes,
// clipped halos and with-halo boxes. The layout is pure arithmetic, so the
// tool needs no fabric: it evaluates the tiling for any locale count.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/garray/garray/decomp"
	"github.com/garray/garray/types/extent"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// layoutConfig mirrors the Decomposition configuration surface in the form
// read from the YAML config file. Flags override file values.
type layoutConfig struct {
	// Shape is the global array shape.
	Shape []int `yaml:"shape"`

	// Locales is the number of locales to lay the mesh over.
	Locales int `yaml:"locales"`

	// Dims is the per-axis locale count; zeros or omission mean "choose".
	Dims []int `yaml:"dims"`

	// Halo is the per-axis halo width (applied to both faces).
	Halo []int `yaml:"halo"`

	// Periods marks the periodic axes.
	Periods []bool `yaml:"periods"`

	// Axis selects a slab distribution: the mesh spans only this axis.
	Axis *int `yaml:"axis"`
}

var (
	cfgFile string
	cfg     = layoutConfig{Locales: 1}

	rootCmd = &cobra.Command{
		Use:   "garray-info",
		Short: "Inspect garray decompositions",
		Long:  "Prints the tile table a garray decomposition would produce for a configuration.",
		RunE:  runInfo,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("garray-info", version)
		},
	}
)

const version = "0.1.0"

func init() {
	klog.InitFlags(nil)
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "YAML file with the layout configuration")
	rootCmd.Flags().IntSliceVar(&cfg.Shape, "shape", nil, "global array shape")
	rootCmd.Flags().IntVar(&cfg.Locales, "locales", 1, "number of locales")
	rootCmd.Flags().IntSliceVar(&cfg.Dims, "dims", nil, "per-axis locale counts (0 = choose)")
	rootCmd.Flags().IntSliceVar(&cfg.Halo, "halo", nil, "per-axis halo width")
	rootCmd.Flags().BoolSliceVar(&cfg.Periods, "periods", nil, "per-axis periodicity")
	rootCmd.AddCommand(versionCmd)
}

func loadConfig(cmd *cobra.Command) error {
	if cfgFile == "" {
		return nil
	}
	data, err := os.ReadFile(cfgFile)
	if err != nil {
		return err
	}
	fileCfg := layoutConfig{Locales: 1}
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	// Flags set on the command line take precedence over the file.
	if !cmd.Flags().Changed("shape") {
		cfg.Shape = fileCfg.Shape
	}
	if !cmd.Flags().Changed("locales") {
		cfg.Locales = fileCfg.Locales
	}
	if !cmd.Flags().Changed("dims") {
		cfg.Dims = fileCfg.Dims
	}
	if !cmd.Flags().Changed("halo") {
		cfg.Halo = fileCfg.Halo
	}
	if !cmd.Flags().Changed("periods") {
		cfg.Periods = fileCfg.Periods
	}
	cfg.Axis = fileCfg.Axis
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}
	if len(cfg.Shape) == 0 {
		return fmt.Errorf("a non-empty --shape is required")
	}
	ndim := len(cfg.Shape)

	dims := cfg.Dims
	if dims == nil {
		dims = make([]int, ndim)
	}
	if cfg.Axis != nil {
		// Slab distribution: the mesh spans a single axis.
		if *cfg.Axis < 0 || *cfg.Axis >= ndim {
			return fmt.Errorf("slab axis %d outside the %d array axes", *cfg.Axis, ndim)
		}
		dims = make([]int, ndim)
		for d := range dims {
			dims[d] = 1
		}
		dims[*cfg.Axis] = 0
	}
	dims, err := extent.FillDims(dims, cfg.Locales)
	if err != nil {
		return err
	}

	var halo any
	if cfg.Halo != nil {
		halo = cfg.Halo
	}
	haloMatrix, err := extent.NormalizeHalo(halo, ndim)
	if err != nil {
		return err
	}
	periods := cfg.Periods
	if periods == nil {
		periods = make([]bool, ndim)
	} else if len(periods) != ndim {
		return fmt.Errorf("periods needs one entry per axis, got %d for %d axes", len(periods), ndim)
	}

	grid, err := extent.ShapeSplit(cfg.Shape, dims)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "shape=%v locales=%d dims=%v periods=%v halo=%v\n",
		cfg.Shape, cfg.Locales, dims, periods, haloMatrix)
	for r, slice := range grid {
		coords := make([]int, ndim)
		rem := r
		for d := ndim - 1; d >= 0; d-- {
			coords[d] = rem % dims[d]
			rem /= dims[d]
		}
		tile, err := decomp.NewTileExtent(r, coords, dims, cfg.Shape, slice, haloMatrix, periods)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  cart=%-4d coord=%-10v n=%-22s h=%-22s halo=%v\n",
			r, coords, tile.BoxN(), tile.BoxH(), tile.Halo())
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
