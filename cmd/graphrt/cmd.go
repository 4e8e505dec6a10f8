package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/graphrt/internal/envconfig"
	"github.com/born-ml/graphrt/subgraph"
	"github.com/born-ml/graphrt/tensor"
)

const version = "v0.1.0-dev"

// NewCLI builds the root command.
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "graphrt",
		Short: "Tensor operator graph runtime",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			envconfig.LoadConfig()
		},
	}

	cobra.EnableCommandSorting = false

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "graphrt %s\n", version)
		},
	}

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show processor features, configuration and supported operators",
		Args:  cobra.NoArgs,
		RunE:  InfoHandler,
	}

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a broadcast subtract graph",
		Long:  "Define, compile and run y = a - b with a of shape (2, 3) and b of shape (1, 3).",
		Args:  cobra.NoArgs,
		RunE:  DemoHandler,
	}
	demoCmd.Flags().Int("threads", 0, "Worker threads (0 uses the configured default)")
	demoCmd.Flags().Bool("no-codegen", false, "Build operator programs on the heap")

	rootCmd.AddCommand(versionCmd, infoCmd, demoCmd)
	return rootCmd
}

func newTable(out io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func InfoHandler(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	f := subgraph.DetectFeatures()

	fmt.Fprint(out, "Processor:\n")
	table := newTable(out, []string{"FEATURE", "VALUE"})
	table.AppendBulk([][]string{
		{"arch", f.Arch},
		{"variant", f.Variant()},
		{"avx2", strconv.FormatBool(f.AVX2)},
		{"fma", strconv.FormatBool(f.FMA)},
		{"neon", strconv.FormatBool(f.NEON)},
		{"fp16 arithmetic", strconv.FormatBool(f.FP16Arith)},
		{"code generation", strconv.FormatBool(f.CodeGen && !envconfig.DisableCodeGen)},
	})
	table.Render()

	fmt.Fprint(out, "\nConfiguration:\n")
	vars := envconfig.AsMap()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	table = newTable(out, []string{"NAME", "VALUE", "DESCRIPTION"})
	for _, name := range names {
		v := vars[name]
		table.Append([]string{v.Name, fmt.Sprintf("%v", v.Value), v.Description})
	}
	table.Render()

	fmt.Fprint(out, "\nOperators:\n")
	table = newTable(out, []string{"KIND"})
	for _, k := range subgraph.Kinds() {
		table.Append([]string{k.String()})
	}
	table.Render()
	return nil
}

func DemoHandler(cmd *cobra.Command, args []string) (err error) {
	threads, err := cmd.Flags().GetInt("threads")
	if err != nil {
		return err
	}
	noCodeGen, err := cmd.Flags().GetBool("no-codegen")
	if err != nil {
		return err
	}

	cfg := subgraph.DefaultConfig()
	if threads > 0 {
		cfg.NumThreads = threads
	}
	eng, err := subgraph.NewEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	sg, err := subgraph.New(eng, 3)
	if err != nil {
		return err
	}
	a, err := sg.DefineTensorValue(tensor.FP32, []int{2, 3}, nil, 0, subgraph.FlagExternalInput)
	if err != nil {
		return err
	}
	b, err := sg.DefineTensorValue(tensor.FP32, []int{1, 3}, nil, 1, subgraph.FlagExternalInput)
	if err != nil {
		return err
	}
	y, err := sg.DefineTensorValue(tensor.FP32, []int{2, 3}, nil, 2, subgraph.FlagExternalOutput)
	if err != nil {
		return err
	}
	if err := sg.DefineSubtract(float32(math.Inf(-1)), float32(math.Inf(1)), a, b, y, 0); err != nil {
		return err
	}

	rt, err := subgraph.CreateRuntime(sg, subgraph.RuntimeOptions{DisableCodeGen: noCodeGen})
	if err != nil {
		return err
	}
	defer releaseInto(&err, rt.Release)

	in := []float32{1, 2, 3, 4, 5, 6}
	sub := []float32{1, 1, 1}
	res := make([]float32, 6)
	if err := rt.Setup([]subgraph.ExternalValue{
		{ID: a, Data: tensor.Bytes(in)},
		{ID: b, Data: tensor.Bytes(sub)},
		{ID: y, Data: tensor.Bytes(res)},
	}); err != nil {
		return err
	}
	if err := rt.Invoke(eng.Pool()); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "a = %v\n", in)
	fmt.Fprintf(out, "b = %v\n", sub)
	fmt.Fprint(out, "a - b =\n")
	for row := 0; row < 2; row++ {
		fmt.Fprintf(out, "  %v\n", res[row*3:row*3+3])
	}
	return nil
}

// releaseInto calls release and reports its error through err unless err
// already holds an earlier failure.
func releaseInto(err *error, release func() error) {
	if rerr := release(); *err == nil {
		*err = rerr
	}
}
