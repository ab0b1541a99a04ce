// Package splitcfg reads and writes the YAML file that records a project's
// unit layout, and applies it to a loaded object.
package splitcfg

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"ppcdtk/pkg/obj"
)

// Hex is an address written as a hexadecimal integer.
type Hex uint32

func (h Hex) MarshalYAML() (interface{}, error) {
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   "!!int",
		Value: fmt.Sprintf("0x%08x", uint32(h)),
	}, nil
}

func (h *Hex) UnmarshalYAML(value *yaml.Node) error {
	v, err := strconv.ParseUint(value.Value, 0, 32)
	if err != nil {
		return errors.Wrapf(err, "line %d: invalid address %q", value.Line, value.Value)
	}
	*h = Hex(v)
	return nil
}

type Config struct {
	Units            []UnitConfig      `yaml:"units,omitempty"`
	BlockRelocations []BlockRelocation `yaml:"block_relocations,omitempty"`
	AddRelocations   []AddRelocation   `yaml:"add_relocations,omitempty"`
}

type UnitConfig struct {
	Name           string        `yaml:"name"`
	Autogenerated  bool          `yaml:"autogenerated,omitempty"`
	CommentVersion uint8         `yaml:"comment_version,omitempty"`
	Splits         []SplitConfig `yaml:"splits,omitempty"`
}

type SplitConfig struct {
	Section string `yaml:"section"`
	Start   Hex    `yaml:"start"`
	// End is omitted for a split running to the end of its section.
	End           Hex    `yaml:"end,omitempty"`
	Align         uint32 `yaml:"align,omitempty"`
	Common        bool   `yaml:"common,omitempty"`
	Skip          bool   `yaml:"skip,omitempty"`
	Rename        string `yaml:"rename,omitempty"`
	Autogenerated bool   `yaml:"autogenerated,omitempty"`
}

// BlockRelocation stops relocation analysis from treating [Start, End) as a
// relocation source, or as a target when Target is set.
type BlockRelocation struct {
	Section string `yaml:"section"`
	Start   Hex    `yaml:"start"`
	End     Hex    `yaml:"end"`
	Target  bool   `yaml:"target,omitempty"`
}

// AddRelocation forces a relocation that analysis cannot discover.
type AddRelocation struct {
	Section string        `yaml:"section"`
	Address Hex           `yaml:"address"`
	Kind    obj.RelocKind `yaml:"kind"`
	Target  string        `yaml:"target"`
	Addend  int64         `yaml:"addend,omitempty"`
}

func Load(r io.Reader) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decoding split config")
	}
	return &c, nil
}

func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening split config")
	}
	defer f.Close()
	c, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return c, nil
}

func (c *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return errors.Wrap(err, "encoding split config")
	}
	return enc.Close()
}

func (c *Config) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating split config")
	}
	if err := c.Write(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "%s", path)
	}
	return f.Close()
}

// Apply adds every unit, split and relocation override in c to o. Entries
// are applied independently; all failures are returned together.
func (c *Config) Apply(logger log.Logger, o *obj.ObjInfo) error {
	var err error
	for _, unit := range c.Units {
		o.AddUnit(obj.ObjUnit{
			Name:           unit.Name,
			Autogenerated:  unit.Autogenerated,
			CommentVersion: unit.CommentVersion,
		})
		for _, s := range unit.Splits {
			if splitErr := applySplit(o, unit.Name, s); splitErr != nil {
				err = multierror.Append(err, errors.Wrapf(splitErr, "unit %s", unit.Name))
			}
		}
	}

	for _, b := range c.BlockRelocations {
		index, _, ok := o.Sections.ByName(b.Section)
		if !ok {
			err = multierror.Append(err, errors.Errorf("block_relocations: unknown section %s", b.Section))
			continue
		}
		start := obj.NewSectionAddress(index, uint32(b.Start))
		if b.Target {
			o.BlockedRelocationTargets.Insert(start, uint32(b.End))
		} else {
			o.BlockedRelocationSources.Insert(start, uint32(b.End))
		}
	}

	for _, r := range c.AddRelocations {
		if relocErr := applyRelocation(logger, o, r); relocErr != nil {
			err = multierror.Append(err, errors.Wrapf(relocErr, "add_relocations %s:%#x", r.Section, uint32(r.Address)))
		}
	}

	level.Debug(logger).Log(
		"msg", "applied split config",
		"object", o.Name,
		"units", len(c.Units),
		"block_relocations", len(c.BlockRelocations),
		"add_relocations", len(c.AddRelocations),
	)
	return err
}

func applySplit(o *obj.ObjInfo, unit string, s SplitConfig) error {
	index, _, ok := o.Sections.ByName(s.Section)
	if !ok {
		return errors.Errorf("unknown section %s", s.Section)
	}
	return o.AddSplit(index, uint32(s.Start), obj.ObjSplit{
		Unit:          unit,
		End:           uint32(s.End),
		Align:         s.Align,
		Common:        s.Common,
		Autogenerated: s.Autogenerated,
		Skip:          s.Skip,
		Rename:        s.Rename,
	})
}

func applyRelocation(logger log.Logger, o *obj.ObjInfo, r AddRelocation) error {
	_, section, ok := o.Sections.ByName(r.Section)
	if !ok {
		return errors.Errorf("unknown section %s", r.Section)
	}
	target, _, ok := o.Symbols.ByName(r.Target)
	if !ok {
		return errors.Errorf("unknown symbol %s", r.Target)
	}
	reloc := obj.ObjReloc{Kind: r.Kind, TargetSymbol: target, Addend: r.Addend}
	var existing *obj.ExistingRelocationError
	if err := section.Relocations.Insert(uint32(r.Address), reloc); errors.As(err, &existing) {
		level.Debug(logger).Log(
			"msg", "replacing relocation",
			"section", section.Name,
			"address", fmt.Sprintf("%#x", existing.Address),
			"kind", existing.Value.Kind,
		)
		section.Relocations.Replace(uint32(r.Address), reloc)
	} else if err != nil {
		return err
	}
	return nil
}

// FromObj exports the units of o with their splits, and the blocked
// relocation ranges.
func FromObj(o *obj.ObjInfo) *Config {
	type splitRef struct {
		unit  string
		split SplitConfig
	}
	var refs []splitRef
	o.Sections.AllSplits(func(_ int, section *obj.ObjSection, address uint32, split obj.ObjSplit) bool {
		refs = append(refs, splitRef{
			unit: split.Unit,
			split: SplitConfig{
				Section:       section.Name,
				Start:         Hex(address),
				End:           Hex(split.End),
				Align:         split.Align,
				Common:        split.Common,
				Skip:          split.Skip,
				Rename:        split.Rename,
				Autogenerated: split.Autogenerated,
			},
		})
		return true
	})
	byUnit := lo.GroupBy(refs, func(r splitRef) string { return r.unit })

	c := &Config{}
	c.Units = lo.Map(o.Units(), func(name string, _ int) UnitConfig {
		unit, ok := lo.Find(o.LinkOrder, func(u obj.ObjUnit) bool { return u.Name == name })
		if !ok {
			unit = obj.ObjUnit{Name: name, Autogenerated: o.IsUnitAutogenerated(name)}
		}
		return UnitConfig{
			Name:           name,
			Autogenerated:  unit.Autogenerated,
			CommentVersion: unit.CommentVersion,
			Splits:         lo.Map(byUnit[name], func(r splitRef, _ int) SplitConfig { return r.split }),
		}
	})

	for _, blocked := range []struct {
		ranges *obj.AddressRanges
		target bool
	}{
		{&o.BlockedRelocationSources, false},
		{&o.BlockedRelocationTargets, true},
	} {
		blocked.ranges.Ascend(func(start obj.SectionAddress, end uint32) bool {
			section, ok := o.Sections.Get(int(start.Section))
			if !ok {
				return true
			}
			c.BlockRelocations = append(c.BlockRelocations, BlockRelocation{
				Section: section.Name,
				Start:   Hex(start.Address),
				End:     Hex(end),
				Target:  blocked.target,
			})
			return true
		})
	}
	return c
}
