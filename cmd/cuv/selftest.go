package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/qrv0/cuv/internal/dense"
	"github.com/qrv0/cuv/internal/memspace"
)

func newSelftestCmd() *cobra.Command {
	var metrics bool
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "construct, view, clone and release matrices on host and device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			if err := runSelfTest(e, cmd.OutOrStdout()); err != nil {
				return err
			}
			if metrics {
				return printMetrics(e, cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&metrics, "metrics", false, "print allocator metrics afterwards")
	return cmd
}

type scenario struct {
	name string
	run  func(e *env) error
}

var scenarios = []scenario{
	{"create_dev_plain", func(e *env) error {
		m, err := dense.New[float32](e.dev, 16, 16)
		if err != nil {
			return err
		}
		return m.Release()
	}},
	{"create_dev_view", func(e *env) error {
		return ownedAndAdoptedView(e.dev)
	}},
	{"create_dev_from_mat", func(e *env) error {
		m, err := dense.New[float32](e.dev, 16, 16)
		if err != nil {
			return err
		}
		defer m.Release()
		deep, err := dense.Clone(m)
		if err != nil {
			return err
		}
		defer deep.Release()
		alias, err := dense.ViewOf(m)
		if err != nil {
			return err
		}
		defer alias.Release()
		if deep.Rows() != m.Rows() || alias.Cols() != m.Cols() {
			return fmt.Errorf("shape changed: %s %s %s", m, deep, alias)
		}
		return nil
	}},
	{"create_host", func(e *env) error {
		return ownedAndAdoptedView(e.host)
	}},
}

// ownedAndAdoptedView builds a 16x16 matrix and a second matrix adopting a
// view of its memory, then releases the owner first.
func ownedAndAdoptedView(loc memspace.Location) error {
	m, err := dense.New[float32](loc, 16, 16)
	if err != nil {
		return err
	}
	defer m.Release()
	vec, err := dense.ViewVector(m.Vector(), 0, m.Len())
	if err != nil {
		return err
	}
	m2, err := dense.FromVector(16, 16, vec, true)
	if err != nil {
		vec.Release()
		return err
	}
	defer m2.Release()
	if err := m.Fill(1); err != nil {
		return err
	}
	if err := m.Release(); err != nil {
		return err
	}
	if _, err := m2.ToHost(); err != nil {
		return fmt.Errorf("view lost its memory: %w", err)
	}
	if m2.Len() != 256 {
		return fmt.Errorf("view has %d elements", m2.Len())
	}
	return m2.Release()
}

func runSelfTest(e *env, w io.Writer) error {
	if e.devTrk == nil {
		if err := e.track(); err != nil {
			return err
		}
	}
	failed := 0
	for _, s := range scenarios {
		if err := s.run(e); err != nil {
			failed++
			fmt.Fprintf(w, "FAIL %s: %v\n", s.name, err)
			continue
		}
		fmt.Fprintf(w, "ok   %s\n", s.name)
	}
	for _, t := range []*memspace.Tracker{e.hostTrk, e.devTrk} {
		st := t.Stats()
		fmt.Fprintf(w, "%-12s allocs=%d frees=%d double_frees=%d live=%d peak=%dB\n",
			t.Name(), st.Allocs, st.Frees, st.DoubleFrees, st.Live, st.PeakBytes)
		if st.DoubleFrees > 0 || st.Live > 0 {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("selftest: %d failure(s)", failed)
	}
	return nil
}

func printMetrics(e *env, w io.Writer) error {
	mfs, err := e.reg.Gather()
	if err != nil {
		return err
	}
	sort.Slice(mfs, func(i, j int) bool { return mfs[i].GetName() < mfs[j].GetName() })
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			v := m.GetCounter().GetValue()
			if g := m.GetGauge(); g != nil {
				v = g.GetValue()
			}
			loc := ""
			for _, l := range m.GetLabel() {
				if l.GetName() == "location" {
					loc = l.GetValue()
				}
			}
			fmt.Fprintf(w, "%s{location=%q} %g\n", mf.GetName(), loc, v)
		}
	}
	return nil
}
