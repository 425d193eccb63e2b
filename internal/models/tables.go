package models

// Difficulty 难度等级
type Difficulty string

const (
	DifficultyEasy      Difficulty = "easy"
	DifficultyMedium    Difficulty = "medium"
	DifficultyHard      Difficulty = "hard"
	DifficultyEpic      Difficulty = "epic"
	DifficultyLegendary Difficulty = "legendary"
)

// Difficulties 按从易到难排列
var Difficulties = []Difficulty{
	DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyEpic, DifficultyLegendary,
}

// Index 难度序号，easy 为 0；未知难度返回 -1
func (d Difficulty) Index() int {
	for i, v := range Difficulties {
		if v == d {
			return i
		}
	}
	return -1
}

// Valid 是否为已知难度
func (d Difficulty) Valid() bool {
	return d.Index() >= 0
}

// DifficultyMultiplier 难度对属性与奖励的倍率
type DifficultyMultiplier struct {
	HP, Attack, Defense, Gold, XP float64
}

var difficultyMultipliers = map[Difficulty]DifficultyMultiplier{
	DifficultyEasy:      {1.0, 1.0, 1.0, 1.0, 1.0},
	DifficultyMedium:    {1.5, 1.2, 1.2, 1.5, 1.5},
	DifficultyHard:      {2.5, 1.5, 1.5, 2.5, 2.5},
	DifficultyEpic:      {4.0, 2.0, 2.0, 4.0, 4.0},
	DifficultyLegendary: {6.0, 2.5, 2.5, 6.0, 6.0},
}

// Multiplier 难度倍率，未知难度按 easy 处理
func (d Difficulty) Multiplier() DifficultyMultiplier {
	if m, ok := difficultyMultipliers[d]; ok {
		return m
	}
	return difficultyMultipliers[DifficultyEasy]
}

// EnemyType 敌人种类
type EnemyType string

const (
	EnemyGoblin    EnemyType = "GOBLIN"
	EnemyOrc       EnemyType = "ORC"
	EnemyTroll     EnemyType = "TROLL"
	EnemyLizardman EnemyType = "LIZARDMAN"
	EnemyDemon     EnemyType = "DEMON"
	EnemyDragon    EnemyType = "DRAGON"
	EnemyUndead    EnemyType = "UNDEAD"
)

// EnemyTypeStats 敌人种类的属性倍率与名字
type EnemyTypeStats struct {
	HP, Attack, Defense float64
	Names               []string
}

var enemyTypeStats = map[EnemyType]EnemyTypeStats{
	EnemyGoblin: {1.0, 0.8, 0.7, []string{
		"Grizzled Goblin", "Snarling Goblin", "Goblin Scout", "Goblin Raider", "Sneaky Goblin"}},
	EnemyOrc: {1.3, 1.1, 0.9, []string{
		"Brutal Orc Warrior", "Orc Berserker", "Scarred Orc", "Orc Marauder", "Orc Grunt"}},
	EnemyTroll: {2.0, 0.9, 1.2, []string{
		"Moss-Covered Troll", "Stone Troll", "Cave Troll", "River Troll", "Hulking Troll"}},
	EnemyLizardman: {1.2, 1.0, 1.0, []string{"Lizardman Hunter", "Scaled Skirmisher"}},
	EnemyDemon:     {1.5, 1.3, 1.1, []string{"Lesser Demon", "Hellspawn Imp"}},
	EnemyDragon:    {3.0, 1.5, 1.4, []string{"Young Drake", "Wyrmling"}},
	EnemyUndead:    {0.8, 1.0, 0.6, []string{"Restless Skeleton", "Shambling Zombie"}},
}

// Stats 种类倍率，未知种类按 GOBLIN 处理
func (t EnemyType) Stats() EnemyTypeStats {
	if s, ok := enemyTypeStats[t]; ok {
		return s
	}
	return enemyTypeStats[EnemyGoblin]
}

// AttackType PvE攻击方式
type AttackType string

const (
	AttackQuick    AttackType = "quick"
	AttackNormal   AttackType = "normal"
	AttackPower    AttackType = "power"
	AttackCritical AttackType = "critical"
	AttackUltimate AttackType = "ultimate"
)

// AttackSpec 攻击方式的消耗与效果
type AttackSpec struct {
	StaminaCost      int
	DamageMultiplier float64
	CritBonus        float64
}

var attackSpecs = map[AttackType]AttackSpec{
	AttackQuick:    {StaminaCost: 5, DamageMultiplier: 0.7},
	AttackNormal:   {StaminaCost: 10, DamageMultiplier: 1.0},
	AttackPower:    {StaminaCost: 20, DamageMultiplier: 1.5, CritBonus: 0.05},
	AttackCritical: {StaminaCost: 35, DamageMultiplier: 2.2, CritBonus: 0.15},
	AttackUltimate: {StaminaCost: 50, DamageMultiplier: 3.0, CritBonus: 0.25},
}

// Spec 查询攻击方式参数
func (t AttackType) Spec() (AttackSpec, bool) {
	s, ok := attackSpecs[t]
	return s, ok
}

// Rarity 装备品质
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

var rarityRank = map[Rarity]int{
	RarityCommon: 0, RarityUncommon: 1, RarityRare: 2, RarityEpic: 3, RarityLegendary: 4,
}

var rarityStatMultiplier = map[Rarity]float64{
	RarityCommon: 1.0, RarityUncommon: 1.5, RarityRare: 2.5, RarityEpic: 4.0, RarityLegendary: 6.0,
}

// Rank 品质序号，越大越稀有
func (r Rarity) Rank() int {
	return rarityRank[r]
}

// StatMultiplier 品质对装备属性的倍率
func (r Rarity) StatMultiplier() float64 {
	if m, ok := rarityStatMultiplier[r]; ok {
		return m
	}
	return 1.0
}

// RarityWeight 品质权重
type RarityWeight struct {
	Rarity Rarity
	Weight int
}

var rarityWeights = map[Difficulty][]RarityWeight{
	DifficultyEasy:      {{RarityCommon, 70}, {RarityUncommon, 30}},
	DifficultyMedium:    {{RarityCommon, 50}, {RarityUncommon, 40}, {RarityRare, 10}},
	DifficultyHard:      {{RarityUncommon, 50}, {RarityRare, 40}, {RarityEpic, 10}},
	DifficultyEpic:      {{RarityRare, 50}, {RarityEpic, 40}, {RarityLegendary, 10}},
	DifficultyLegendary: {{RarityEpic, 60}, {RarityLegendary, 40}},
}

// RarityWeights 难度对应的品质权重表
func (d Difficulty) RarityWeights() []RarityWeight {
	if w, ok := rarityWeights[d]; ok {
		return w
	}
	return rarityWeights[DifficultyEasy]
}

// EquipmentSlots 装备部位
var EquipmentSlots = []string{"weapon", "helmet", "armor", "boots", "gloves", "ring", "amulet"}
