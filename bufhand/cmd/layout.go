// Copyright 2026 The bufhand Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"bufhand.dev/bufhand/bufhand/config"
	"bufhand.dev/bufhand/bufhand/flag"
)

// Layout implements subcommands.Command for the "layout" command.
type Layout struct {
	out io.Writer
}

// Name implements subcommands.Command.Name.
func (*Layout) Name() string {
	return "layout"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Layout) Synopsis() string {
	return "print the ranges a send would assemble"
}

// Usage implements subcommands.Command.Usage.
func (*Layout) Usage() string {
	return "layout [flags] - print the range layout resolved from flags and --layout.\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Layout) SetFlags(f *flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (l *Layout) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	out := l.out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprint(out, conf.Layout.String())
	return subcommands.ExitSuccess
}
