// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/AleutianAI/conjecture/pkg/ux"
	"github.com/AleutianAI/conjecture/services/conjecture/choice"
)

var errUnknownKind = errors.New("unknown choice kind")

// constraintFlags builds choice constraints from command-line flags.
type constraintFlags struct {
	min, max      int64
	shrinkTowards int64
	p             float64
	minSize       int
	alphabet      string
	flags         *pflag.FlagSet
}

func (c *constraintFlags) register(f *pflag.FlagSet) {
	c.flags = f
	f.Int64Var(&c.min, "min", 0, "integer lower bound (unbounded if unset)")
	f.Int64Var(&c.max, "max", 0, "integer upper bound (unbounded if unset)")
	f.Int64Var(&c.shrinkTowards, "shrink-towards", 0, "integer shrink target")
	f.Float64Var(&c.p, "p", 0.5, "boolean probability of true")
	f.IntVar(&c.minSize, "min-size", 0, "bytes or string minimum length")
	f.StringVar(&c.alphabet, "alphabet", "abcdefghijklmnopqrstuvwxyz", "string alphabet, simplest first")
}

func (c *constraintFlags) build(kind string) (choice.Constraints, error) {
	switch kind {
	case choice.KindInteger.String():
		ic := choice.IntegerConstraints{ShrinkTowards: c.shrinkTowards}
		if c.flags.Changed("min") {
			ic.Min = &c.min
		}
		if c.flags.Changed("max") {
			ic.Max = &c.max
		}
		return ic, nil
	case choice.KindBoolean.String():
		return choice.BooleanConstraints{P: c.p}, nil
	case choice.KindBytes.String():
		return choice.BytesConstraints{MinSize: c.minSize}, nil
	case choice.KindString.String():
		return choice.StringConstraints{MinSize: c.minSize, Alphabet: []rune(c.alphabet)}, nil
	case choice.KindFloat.String():
		return choice.UnboundedFloat(), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownKind, kind)
	}
}

// parseValue reads a value of kind from its command-line form. Bytes are
// hex.
func parseValue(kind, s string) (any, error) {
	switch kind {
	case choice.KindInteger.String():
		return strconv.ParseInt(s, 10, 64)
	case choice.KindBoolean.String():
		return strconv.ParseBool(s)
	case choice.KindBytes.String():
		return hex.DecodeString(s)
	case choice.KindString.String():
		return s, nil
	case choice.KindFloat.String():
		return strconv.ParseFloat(s, 64)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownKind, kind)
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case []byte:
		return hex.EncodeToString(x)
	case string:
		return strconv.Quote(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func newCodecCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codec",
		Short: "Map choice values to and from their complexity index",
	}

	var indexFlags constraintFlags
	indexCmd := &cobra.Command{
		Use:   "index <kind> <value>",
		Short: "Print the complexity index of a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := indexFlags.build(args[0])
			if err != nil {
				return err
			}
			v, err := parseValue(args[0], args[1])
			if err != nil {
				return fmt.Errorf("parse %s value: %w", args[0], err)
			}
			idx, err := choice.IndexOf(v, c)
			if err != nil {
				return err
			}
			ux.KeyValues("INDEX", []ux.Field{
				{Key: "kind", Value: args[0]},
				{Key: "value", Value: formatValue(v)},
				{Key: "index", Value: idx.String()},
			})
			return nil
		},
	}
	indexFlags.register(indexCmd.Flags())

	var valueFlags constraintFlags
	valueCmd := &cobra.Command{
		Use:   "value <kind> <index>",
		Short: "Print the value at a complexity index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := valueFlags.build(args[0])
			if err != nil {
				return err
			}
			idx, ok := new(big.Int).SetString(args[1], 10)
			if !ok {
				return fmt.Errorf("parse index %q", args[1])
			}
			v, err := choice.ValueOf(idx, c)
			if err != nil {
				return err
			}
			ux.KeyValues("VALUE", []ux.Field{
				{Key: "kind", Value: args[0]},
				{Key: "index", Value: idx.String()},
				{Key: "value", Value: formatValue(v)},
			})
			return nil
		},
	}
	valueFlags.register(valueCmd.Flags())

	lexCmd := &cobra.Command{
		Use:   "float-lex <float>",
		Short: "Print the lexicographic encoding of a non-negative float",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return err
			}
			f = math.Abs(f)
			lex := choice.FloatToLex(f)
			ux.KeyValues("LEX", []ux.Field{
				{Key: "float", Value: formatValue(f)},
				{Key: "lex", Value: fmt.Sprintf("%#016x", lex)},
				{Key: "decoded", Value: formatValue(choice.LexToFloat(lex))},
			})
			return nil
		},
	}

	cmd.AddCommand(indexCmd, valueCmd, lexCmd)
	return cmd
}
