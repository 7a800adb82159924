package config

var Presets = map[string]map[string]*Config{
	"pendulum": {
		"default": {
			Model: "pendulum", Method: "adams",
			RelTol: 1e-6, AbsTol: 1e-8, TEnd: 10.0, Points: 200, MaxSteps: 5000,
		},
		"long": {
			Model: "pendulum", Method: "adams",
			RelTol: 1e-8, AbsTol: 1e-10, TEnd: 60.0, Points: 600, MaxSteps: 50000,
		},
	},
	"vanderpol": {
		"stiff": {
			Model: "vanderpol", Method: "bdf", Solver: "dense",
			RelTol: 1e-6, AbsTol: 1e-8, TEnd: 20.0, Points: 400, MaxSteps: 20000,
		},
	},
	"heat1d": {
		"band": {
			Model: "heat1d", Method: "bdf", Solver: "band",
			RelTol: 1e-6, AbsTol: 1e-8, TEnd: 0.5, Points: 100, MaxSteps: 10000,
		},
		"bbd": {
			Model: "heat1d", Method: "bdf", Solver: "bbd",
			RelTol: 1e-6, AbsTol: 1e-8, TEnd: 0.5, Points: 100, MaxSteps: 10000,
		},
	},
	"linear3": {
		"scenario": {
			Model: "linear3", Method: "bdf", Solver: "dense",
			RelTol: 1e-8, AbsTol: 1e-10, TEnd: 1.0, Points: 50, MaxSteps: 5000,
		},
	},
}

func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	return names
}
