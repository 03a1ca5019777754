package config

import (
	"fmt"
	"strings"

	"github.com/danmuck/dorepo/internal/protocol/schema"
)

// ClassDecl declares one distributed class in the config file.
type ClassDecl struct {
	Name   string      `toml:"name"`
	Number uint16      `toml:"number"`
	Fields []FieldDecl `toml:"fields"`
}

// FieldDecl declares one field. Default holds one textual value per param;
// Components names the atomic or parameter fields a molecular field bundles.
type FieldDecl struct {
	Name       string   `toml:"name"`
	Tag        uint16   `toml:"tag"`
	Kind       string   `toml:"kind"`
	Keywords   []string `toml:"keywords"`
	Params     []string `toml:"params"`
	Default    []string `toml:"default"`
	Components []string `toml:"components"`
}

// BuildSchema turns class declarations into a schema registry.
func BuildSchema(decls []ClassDecl) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for _, decl := range decls {
		class, err := buildClass(decl)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(class); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildClass(decl ClassDecl) (*schema.Class, error) {
	name := strings.TrimSpace(decl.Name)
	tags := make(map[string]uint16, len(decl.Fields))
	for _, fd := range decl.Fields {
		tags[strings.TrimSpace(fd.Name)] = fd.Tag
	}

	fields := make([]*schema.Field, 0, len(decl.Fields))
	for _, fd := range decl.Fields {
		f, err := buildField(name, fd, tags)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return schema.NewClass(name, decl.Number, fields...)
}

func buildField(class string, fd FieldDecl, tags map[string]uint16) (*schema.Field, error) {
	fail := func(format string, args ...any) error {
		return schema.ValidationError{Class: class, Field: fd.Name, Reason: fmt.Sprintf(format, args...)}
	}

	kind, err := schema.ParseKind(fd.Kind)
	if err != nil {
		return nil, fail("%v", err)
	}
	keywords, err := schema.ParseKeywords(fd.Keywords)
	if err != nil {
		return nil, fail("%v", err)
	}
	f := &schema.Field{
		Name:     strings.TrimSpace(fd.Name),
		Tag:      fd.Tag,
		Kind:     kind,
		Keywords: keywords,
	}

	if kind == schema.Molecular {
		if len(fd.Params) > 0 || len(fd.Default) > 0 {
			return nil, fail("molecular fields take components only")
		}
		for _, comp := range fd.Components {
			tag, ok := tags[strings.TrimSpace(comp)]
			if !ok {
				return nil, fail("unknown component %q", comp)
			}
			f.Components = append(f.Components, tag)
		}
		return f, nil
	}
	if len(fd.Components) > 0 {
		return nil, fail("components on a %s field", fd.Kind)
	}

	for _, raw := range fd.Params {
		enc, err := schema.ParseEncoding(raw)
		if err != nil {
			return nil, fail("%v", err)
		}
		f.Params = append(f.Params, enc)
	}

	if fd.Default != nil {
		if len(fd.Default) != len(f.Params) {
			return nil, fail("default has %d values for %d params", len(fd.Default), len(f.Params))
		}
		args := make([]any, len(f.Params))
		for i, enc := range f.Params {
			v, err := schema.ParseValue(enc, fd.Default[i])
			if err != nil {
				return nil, fail("default[%d]: %v", i, err)
			}
			args[i] = v
		}
		if f.Default, err = schema.EncodeArgs(f, args...); err != nil {
			return nil, fail("%v", err)
		}
	}
	return f, nil
}
