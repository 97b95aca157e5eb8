package models

import "time"

// Role はスロットに割り当てられた役割
type Role string

const (
	RoleFirm     Role = "firm"
	RoleCustomer Role = "customer"
)

func (r Role) Valid() bool {
	return r == RoleFirm || r == RoleCustomer
}

// Phase はターン内の進行段階
type Phase string

const (
	PhaseBeginningTurn                       Phase = "beginning_turn"
	PhaseActiveFirmPlayed                    Phase = "active_firm_played"
	PhaseActiveFirmPlayedAllCustomersReplied Phase = "active_firm_played_all_customers_replied"
	PhaseTurnEnded                           Phase = "turn_ended"
)

// FirmStatus は企業が先手(active)か後手(passive)か
type FirmStatus string

const (
	FirmActive  FirmStatus = "active"
	FirmPassive FirmStatus = "passive"
)

// NoFirm は顧客がどの企業も選ばなかったことを表す
const NoFirm = -1

// RoleAssignment はセッション作成時に決まり、以後変更されない。
type RoleAssignment struct {
	SlotID int  `json:"slot_id"`
	Role   Role `json:"role"`
	IsBot  bool `json:"is_bot"`
}

// FirmState は企業スロットの現在ターンの状態
type FirmState struct {
	Position         int        `json:"position"`
	Price            int        `json:"price"`
	Profit           int        `json:"profit"` // 今ターンの利益
	CumulativeProfit int        `json:"cumulative_profit"`
	Clients          int        `json:"clients"`
	Status           FirmStatus `json:"status"`
	Replied          bool       `json:"replied"`     // activeの選択を記録済み
	GotResults       bool       `json:"got_results"` // 顧客数・利益を計算済み
	LastRequest      time.Time  `json:"last_request"`
}

// CustomerState は顧客スロットの現在ターンの状態
type CustomerState struct {
	Position          int       `json:"position"`
	ExplorationRadius int       `json:"exploration_radius"`
	ChosenFirm        int       `json:"chosen_firm"` // 企業のスロットID。NoFirmなら未購入
	Utility           int       `json:"utility"`
	CumulativeUtility int       `json:"cumulative_utility"`
	Replied           bool      `json:"replied"`
	Decided           bool      `json:"decided"` // 選択が記録済み（ボットは返答済み扱いでもfalseのことがある）
	LastRequest       time.Time `json:"last_request"`
}

// Snapshot は完了したターン1回分の記録
type Snapshot struct {
	Turn      int                   `json:"turn"`
	Firms     map[int]FirmState     `json:"firms"`
	Customers map[int]CustomerState `json:"customers"`
}

// CurrentState は現在ターンのエージェント状態
type CurrentState struct {
	Firms     map[int]FirmState     `json:"firms"`
	Customers map[int]CustomerState `json:"customers"`
}

// SessionSnapshot はバックアップ境界で保存・復元するデータ一式。
// この項目だけでセッションを完全に再構築できなければならない。
type SessionSnapshot struct {
	History          []Snapshot       `json:"history"`
	CurrentState     CurrentState     `json:"currentState"`
	IdentityMappings map[string]int   `json:"identityMappings"`
	RoleAssignments  []RoleAssignment `json:"roleAssignments"`
	TurnCounter      int              `json:"turnCounter"`
	Phase            Phase            `json:"phase"`
	ContinueFlag     bool             `json:"continueFlag"`
}

// Assignment は運営者が指定する参加者の割り当て
type Assignment struct {
	SlotID int    `json:"slot_id"`
	Name   string `json:"name"` // 空の場合は最初に接続したクライアントが使う
	Role   Role   `json:"role"`
	IsBot  bool   `json:"is_bot"`
}
