package policy

import "github.com/Veraticus/clanbank/internal/model"

// DefaultConfig returns the clan's standing tables.
func DefaultConfig() Config {
	return Config{
		DefaultLimit: 50,
		Limits: map[string]int{
			string(model.CategoryMaterials): 1000,
		},
		FallbackRate: 0.01,
		Rewards: map[string]Reward{
			string(model.CategoryWeapons):     {Rate: 0.05},
			string(model.CategoryArmor):       {Rate: 0.2},
			string(model.CategoryConsumables): {Rate: 0.01},
			string(model.CategoryMedicine):    {Rate: 0.02},
			string(model.CategoryMaterials):   {Rate: 0.05, Divisor: 10},
		},
		CategoryMapping: map[string]string{
			"ARMAS":       string(model.CategoryWeapons),
			"MUNICION":    string(model.CategoryWeapons),
			"CONSUMIBLES": string(model.CategoryConsumables),
			"MINERALES":   string(model.CategoryMaterials),
			"ROPA":        string(model.CategoryOther),
			"ARMADURAS":   string(model.CategoryArmor),
			"OTROS":       string(model.CategoryOther),
		},
		StaticCategories: map[string][]string{
			string(model.CategoryConsumables): {"alimentos", "agua", "pepinos"},
			string(model.CategoryMaterials): {
				"scu iron", "agricium", "aluminium", "aphorite", "bexalite",
				"borase", "copper", "corundum", "diamond", "dolivine", "gold",
				"hadanite", "laranite", "levskiite", "quantanium", "taranite",
				"titanium", "zetaprolium",
			},
			string(model.CategoryWeapons): {
				"p4-ar", "p5-ar", "p6-ar", "p7-ar", "p8-ar", "p8", "arclight",
				"lh86", "s-38", "br-2", "devastator", "f55", "fs-9", "demeco",
				"scourge", "salvo frag",
			},
			string(model.CategoryArmor): {
				"armaduras corvus", "armadura ligera", "armadura media",
				"armadura pesada", "armadura radiación", "armadura calor",
				"armadura frío",
			},
			string(model.CategoryMedicine): {"medpen"},
		},
	}
}
