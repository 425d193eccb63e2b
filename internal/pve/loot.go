// loot.go

package pve

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jacl-coder/PixelStorm-Arena/internal/combat"
	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
)

// DropChance 难度对应的掉落概率：每档 10%
func DropChance(d models.Difficulty) float64 {
	return 0.10 * float64(max(0, d.Index())+1)
}

// RollRarity 按难度权重抽取品质
func RollRarity(calc *combat.Calculator, d models.Difficulty) models.Rarity {
	weights := d.RarityWeights()
	total := 0
	for _, w := range weights {
		total += w.Weight
	}
	roll := calc.Intn(total)
	for _, w := range weights {
		if roll < w.Weight {
			return w.Rarity
		}
		roll -= w.Weight
	}
	return weights[len(weights)-1].Rarity
}

// GenerateItem 生成一件战利品装备
func GenerateItem(calc *combat.Calculator, battle *models.Battle) models.LootItem {
	rarity := RollRarity(calc, battle.Difficulty)
	slot := models.EquipmentSlots[calc.Intn(len(models.EquipmentSlots))]
	m := rarity.StatMultiplier()
	lvl := float64(battle.RequiredLevel)

	item := models.LootItem{
		ID:            uuid.NewString(),
		Name:          fmt.Sprintf("Battle %s %s", title(string(rarity)), title(slot)),
		Slot:          slot,
		Rarity:        rarity,
		RequiredLevel: battle.RequiredLevel,
	}
	switch slot {
	case "weapon":
		item.AttackBonus = int((15 + lvl*2) * m)
	case "helmet", "armor":
		item.AttackBonus = int((5 + lvl) * m * 0.3)
		item.DefenseBonus = int((20 + lvl*3) * m)
		item.HPBonus = int((50 + lvl*10) * m)
	default:
		item.AttackBonus = int((8 + lvl*1.5) * m * 0.5)
		item.DefenseBonus = int((8 + lvl*1.5) * m * 0.5)
		item.HPBonus = int((30 + lvl*5) * m)
	}
	return item
}
