package validator

import (
	"strings"
	"testing"
)

func TestConfigContractEnforcement(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{
			name:    "empty_config",
			json:    `{}`,
			wantErr: false,
		},
		{
			name: "full_config",
			json: `{
				"indent_spaces": 4,
				"float_specs": {"32": [8, 23]},
				"entity_arch": "rtl",
				"libs": {"vhdl": ["lib/*.vhd"]},
				"lib_paths": {"verilog": ["sv"]},
				"env": {"RESET_LEVEL": "1"},
				"time_unit": "ps",
				"extern_modules": ["xmods/*.yaml"],
				"rules": {"unused_input": "off"},
				"cache_dir": ".hdlgen",
				"verilog": {"fpu_fnmap": {"add": {"module": "fpu", "func": "add"}}}
			}`,
			wantErr: false,
		},
		{
			name:    "empty_verilog_section",
			json:    `{"verilog": {}}`,
			wantErr: false,
		},
		{
			name:    "string_indent",
			json:    `{"indent_spaces": "two"}`,
			wantErr: true,
		},
		{
			name:    "unknown_field",
			json:    `{"indent_space": 2}`,
			wantErr: true,
		},
		{
			name:    "bad_severity",
			json:    `{"rules": {"unused_input": "fatal"}}`,
			wantErr: true,
		},
		{
			name:    "bad_backend_key",
			json:    `{"libs": {"vlog": ["a.v"]}}`,
			wantErr: true,
		},
		{
			name:    "float_spec_arity",
			json:    `{"float_specs": {"32": [8]}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateConfigJSON([]byte(tt.json))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfigJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExternModuleContract(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	good := map[string]interface{}{
		"name": "fp_utils",
		"functions": map[string]interface{}{
			"rcloseto": map[string]interface{}{
				"nargs":  3,
				"params": []interface{}{"NX=exp(0)", "NM=mant(0)"},
				"fnsig":  "f*, real, real",
				"dtype":  "bool",
			},
		},
	}
	if err := v.ValidateExternModule(good); err != nil {
		t.Fatalf("expected valid module, got %v", err)
	}

	bad := map[string]interface{}{
		"name": "fp utils",
		"functions": map[string]interface{}{
			"rcloseto": map[string]interface{}{"params": []interface{}{"NX"}},
		},
	}
	err = v.ValidateExternModule(bad)
	if err == nil {
		t.Fatalf("expected validation error for bad module")
	}
	if !strings.Contains(err.Error(), "schema validation failed") {
		t.Fatalf("unexpected error: %v", err)
	}
	if errs := v.ValidationErrors(bad, ExternModuleDef); len(errs) == 0 {
		t.Fatalf("expected detailed validation errors")
	}
	if errs := v.ValidationErrors(good, ExternModuleDef); errs != nil {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}
