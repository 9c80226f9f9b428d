// Command hymn assembles and runs HYMN programs from the shell.
package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hymnsim/hymn/cpu"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "hymn",
		Short:         "HYMN 8-bit accumulator machine emulator",
		Long:          "hymn assembles and executes programs for the HYMN machine: an 8-bit accumulator architecture with 30 words of memory, a read port, and a write port.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	viper.SetEnvPrefix("hymn")
	viper.AutomaticEnv()
	viper.SetDefault("timeout", 5*time.Second)
	viper.SetDefault("verbose", false)

	rootCmd.AddCommand(
		newRunCmd(),
		newCheckCmd(),
	)

	return rootCmd
}

// parseInputs splits a comma-separated list of initial input values.
func parseInputs(arg string) (inputs []int, err error) {
	if len(arg) == 0 {
		return
	}
	for _, field := range strings.Split(arg, ",") {
		field = strings.TrimSpace(field)
		if len(field) == 0 {
			continue
		}
		var v int
		v, err = strconv.Atoi(field)
		if err != nil {
			return
		}
		inputs = append(inputs, v)
	}
	return
}

func newRunCmd() *cobra.Command {
	var inputArg string

	runCmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Assemble and run a HYMN program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			inputs, err := parseInputs(inputArg)
			if err != nil {
				return fmt.Errorf("%v: bad input value: %w", inputArg, err)
			}

			m := cpu.NewMachine()
			m.Verbose = viper.GetBool("verbose")
			if err = m.Load(string(source), inputs); err != nil {
				return fmt.Errorf("%v: %w", args[0], err)
			}

			timeout := viper.GetDuration("timeout")
			stdin := bufio.NewScanner(cmd.InOrStdin())
			for {
				m.Run(timeout)
				if !m.Waiting {
					break
				}
				// The program wants a value the queue doesn't have.
				fmt.Fprint(cmd.OutOrStdout(), "input? ")
				if !stdin.Scan() {
					break
				}
				v, serr := strconv.Atoi(strings.TrimSpace(stdin.Text()))
				if serr != nil {
					return fmt.Errorf("bad input value: %w", serr)
				}
				if err = m.ProvideInput(v); err != nil {
					return err
				}
			}

			snap := m.Snapshot()
			for _, v := range snap.Output {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pc=%d ac=%d halted=%v\n", snap.Pc, snap.Ac, snap.Halted)
			if len(snap.Error) != 0 {
				return fmt.Errorf("%v", snap.Error)
			}

			return nil
		},
	}

	runCmd.Flags().StringVarP(&inputArg, "input", "i", "", "comma-separated initial input values")
	runCmd.Flags().DurationP("timeout", "t", viper.GetDuration("timeout"), "wall-clock budget for execution")
	runCmd.Flags().BoolP("verbose", "v", false, "verbose execution logging")
	viper.BindPFlag("timeout", runCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("verbose", runCmd.Flags().Lookup("verbose"))

	return runCmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE",
		Short: "Assemble a HYMN program and print its listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			m := cpu.NewMachine()
			if err = m.Load(string(source), nil); err != nil {
				return fmt.Errorf("%v: %w", args[0], err)
			}

			for addr, w := range m.Words() {
				if addr >= len(m.Listing) {
					break
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%2d: %4d  %-8v %v\n", addr, w.Int(), w, m.Listing[addr])
			}

			labels := make([]string, 0, len(m.Symbols))
			for label := range m.Symbols {
				labels = append(labels, label)
			}
			sort.Strings(labels)
			for _, label := range labels {
				fmt.Fprintf(cmd.OutOrStdout(), "%v = %d\n", label, m.Symbols[label])
			}

			return nil
		},
	}
}
