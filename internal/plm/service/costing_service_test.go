package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/bitfantasy/atelier/internal/plm/entity"
	"github.com/bitfantasy/atelier/internal/plm/repository"
	"github.com/bitfantasy/atelier/internal/plm/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type costingFixture struct {
	ctx         context.Context
	db          *gorm.DB
	repos       *repository.Repositories
	consumption *ConsumptionService
	usage       *UsageService
	costing     *CostingService
}

func setupCostingTest(t *testing.T) *costingFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	readiness := NewReadinessService(repos.BOMLine)
	return &costingFixture{
		ctx:         context.Background(),
		db:          db,
		repos:       repos,
		consumption: NewConsumptionService(repos.BOMLine),
		usage:       NewUsageService(repos.Usage, repos.BOMLine, repos.Style),
		costing:     NewCostingService(repos.Costing, repos.Usage, repos.BOMLine, readiness),
	}
}

// seedQuoteScenario 两行已确认台账（2.0×10 + 3.0×5）加一个无损耗用量方案
func (f *costingFixture) seedQuoteScenario(t *testing.T, styleID string) *entity.UsageScenario {
	t.Helper()
	_, rev := testutil.SeedStyle(t, f.db, styleID, "ST-"+styleID)

	fabric, err := f.consumption.CreateLine(f.ctx, rev.ID, styleID, &BOMLineInput{
		MaterialName: "主面料", UnitPrice: decp("10"), SortOrder: 1,
	}, "u1")
	require.NoError(t, err)
	_, err = f.consumption.SetStage(f.ctx, fabric.ID, entity.MaturityConfirmed, dec("2.0"), "u1")
	require.NoError(t, err)

	lining, err := f.consumption.CreateLine(f.ctx, rev.ID, styleID, &BOMLineInput{
		MaterialName: "里布", UnitPrice: decp("5"), SortOrder: 2,
	}, "u1")
	require.NoError(t, err)
	_, err = f.consumption.SetStage(f.ctx, lining.ID, entity.MaturityConfirmed, dec("3.0"), "u1")
	require.NoError(t, err)

	scenario, err := f.usage.Create(f.ctx, rev.ID, &CreateScenarioInput{Purpose: entity.PurposeSampleQuote}, "u1")
	require.NoError(t, err)
	return scenario
}

func TestCostingTotals(t *testing.T) {
	f := setupCostingTest(t)
	scenario := f.seedQuoteScenario(t, "style-totals")

	version, err := f.costing.Create(f.ctx, "style-totals", &CreateCostingInput{
		CostingType:     entity.CostingTypeSample,
		UsageScenarioID: scenario.ID,
		LaborCost:       dec("10"),
		MarginPct:       dec("20"),
	}, "u1")
	require.NoError(t, err)

	assert.Equal(t, 1, version.VersionNo)
	assert.Equal(t, entity.CostingDraft, version.Status)
	require.Len(t, version.Lines, 2)
	assert.True(t, version.Lines[0].LineCost.Equal(dec("20")))
	assert.True(t, version.Lines[1].LineCost.Equal(dec("15")))
	assert.True(t, version.MaterialCost.Equal(dec("35")), "material = Σ line cost")
	assert.True(t, version.TotalCost.Equal(dec("45")), "total = material + labor")
	// 45 / (1 - 0.20) = 56.25
	assert.True(t, version.UnitPrice.Equal(dec("56.25")))
}

func TestCostingMarginValidation(t *testing.T) {
	f := setupCostingTest(t)
	scenario := f.seedQuoteScenario(t, "style-margin")

	var ve *ValidationError
	_, err := f.costing.Create(f.ctx, "style-margin", &CreateCostingInput{
		CostingType:     entity.CostingTypeSample,
		UsageScenarioID: scenario.ID,
		MarginPct:       dec("100"),
	}, "u1")
	assert.ErrorAs(t, err, &ve)

	_, err = f.costing.Create(f.ctx, "style-margin", &CreateCostingInput{
		CostingType:     entity.CostingTypeSample,
		UsageScenarioID: scenario.ID,
		MarginPct:       dec("-1"),
	}, "u1")
	assert.ErrorAs(t, err, &ve)
}

func TestCostingVersionAllocationUnderConcurrency(t *testing.T) {
	f := setupCostingTest(t)
	scenario := f.seedQuoteScenario(t, "style-cc")

	// 同一 (style, costing_type) 上并发创建，版本号恰为 1..N
	const workers = 4
	var wg sync.WaitGroup
	versions := make(chan int, workers)
	failures := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.costing.Create(f.ctx, "style-cc", &CreateCostingInput{
				CostingType:     entity.CostingTypeSample,
				UsageScenarioID: scenario.ID,
				MarginPct:       dec("20"),
			}, "u1")
			if err != nil {
				failures <- err
				return
			}
			versions <- v.VersionNo
		}()
	}
	wg.Wait()
	close(versions)
	close(failures)

	for err := range failures {
		require.NoError(t, err)
	}
	seen := make(map[int]bool)
	for v := range versions {
		require.False(t, seen[v], "duplicate version %d", v)
		seen[v] = true
	}
	for v := 1; v <= workers; v++ {
		assert.True(t, seen[v], "missing version %d", v)
	}
}

func TestCostingRejectsScenarioFromAnotherStyle(t *testing.T) {
	f := setupCostingTest(t)
	scenario := f.seedQuoteScenario(t, "style-own")
	testutil.SeedStyle(t, f.db, "style-other", "ST-OTHER")

	var ve *ValidationError
	_, err := f.costing.Create(f.ctx, "style-other", &CreateCostingInput{
		CostingType:     entity.CostingTypeSample,
		UsageScenarioID: scenario.ID,
		MarginPct:       dec("20"),
	}, "u1")
	require.ErrorAs(t, err, &ve)

	// 校验失败不落任何版本
	versions, err := f.costing.ListByStyle(f.ctx, "style-other", "", "")
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestCostingMissingUnitPriceAllOrNothing(t *testing.T) {
	f := setupCostingTest(t)
	_, rev := testutil.SeedStyle(t, f.db, "style-nop", "ST-NOP")

	priced, err := f.consumption.CreateLine(f.ctx, rev.ID, "style-nop", &BOMLineInput{
		MaterialName: "主面料", UnitPrice: decp("10"),
	}, "u1")
	require.NoError(t, err)
	_, err = f.consumption.SetStage(f.ctx, priced.ID, entity.MaturityConfirmed, dec("2"), "u1")
	require.NoError(t, err)

	// 无单价的行
	unpriced, err := f.consumption.CreateLine(f.ctx, rev.ID, "style-nop", &BOMLineInput{MaterialName: "缺价辅料"}, "u1")
	require.NoError(t, err)
	_, err = f.consumption.SetStage(f.ctx, unpriced.ID, entity.MaturityConfirmed, dec("1"), "u1")
	require.NoError(t, err)

	scenario, err := f.usage.Create(f.ctx, rev.ID, &CreateScenarioInput{Purpose: entity.PurposeSampleQuote}, "u1")
	require.NoError(t, err)

	_, err = f.costing.Create(f.ctx, "style-nop", &CreateCostingInput{
		CostingType:     entity.CostingTypeSample,
		UsageScenarioID: scenario.ID,
	}, "u1")
	var missing *MissingUnitPriceError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"缺价辅料"}, missing.Materials)

	// 整体中止：不留部分版本
	versions, err := f.costing.ListByStyle(f.ctx, "style-nop", "", "")
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestPatchHeaderFieldPolicy(t *testing.T) {
	f := setupCostingTest(t)
	scenario := f.seedQuoteScenario(t, "style-hdr")

	version, err := f.costing.Create(f.ctx, "style-hdr", &CreateCostingInput{
		CostingType:     entity.CostingTypeSample,
		UsageScenarioID: scenario.ID,
		MarginPct:       dec("20"),
	}, "u1")
	require.NoError(t, err)

	// A类字段：直接改，汇总重算
	version, err = f.costing.PatchHeader(f.ctx, version.ID, &CostingHeaderPatch{LaborCost: decp("10")})
	require.NoError(t, err)
	assert.True(t, version.TotalCost.Equal(dec("45")))
	assert.True(t, version.UnitPrice.Equal(dec("56.25")))

	// B类字段：整单拒绝，不留变更
	_, err = f.costing.PatchHeader(f.ctx, version.ID, &CostingHeaderPatch{
		OverheadCost: decp("99"),
		MarginPct:    decp("30"),
	})
	var policy *VersionPolicyError
	require.ErrorAs(t, err, &policy)
	assert.Contains(t, policy.Fields, "margin_pct")

	got, err := f.costing.Get(f.ctx, version.ID)
	require.NoError(t, err)
	assert.True(t, got.OverheadCost.IsZero(), "rejected patch must not leave partial writes")
	assert.True(t, got.MarginPct.Equal(dec("20")))
}

func TestPatchLineDirtyFlagRoundTrip(t *testing.T) {
	f := setupCostingTest(t)
	scenario := f.seedQuoteScenario(t, "style-line")

	version, err := f.costing.Create(f.ctx, "style-line", &CreateCostingInput{
		CostingType:     entity.CostingTypeSample,
		UsageScenarioID: scenario.ID,
	}, "u1")
	require.NoError(t, err)
	lineID := version.Lines[0].ID

	line, err := f.costing.PatchLine(f.ctx, lineID, &CostLinePatch{
		ConsumptionAdjusted: decp("2.5"),
		Reason:              "手工修正样衣实测",
	})
	require.NoError(t, err)
	assert.True(t, line.IsConsumptionAdjusted)
	assert.False(t, line.IsPriceAdjusted)
	assert.True(t, line.LineCost.Equal(dec("25")))

	got, err := f.costing.Get(f.ctx, version.ID)
	require.NoError(t, err)
	assert.True(t, got.MaterialCost.Equal(dec("40")), "header totals follow line patch")

	// 改回快照值：脏标记自动归位
	line, err = f.costing.PatchLine(f.ctx, lineID, &CostLinePatch{ConsumptionAdjusted: decp("2.0")})
	require.NoError(t, err)
	assert.False(t, line.IsConsumptionAdjusted)
	assert.True(t, line.ConsumptionSnapshot.Equal(dec("2.0")), "snapshot never moves")
}

func TestRefreshSnapshotPreservesAdjustments(t *testing.T) {
	f := setupCostingTest(t)
	scenario := f.seedQuoteScenario(t, "style-rf")

	version, err := f.costing.Create(f.ctx, "style-rf", &CreateCostingInput{
		CostingType:     entity.CostingTypeSample,
		UsageScenarioID: scenario.ID,
	}, "u1")
	require.NoError(t, err)

	adjusted := version.Lines[0]  // 主面料 2.0×10
	untouched := version.Lines[1] // 里布 3.0×5

	_, err = f.costing.PatchLine(f.ctx, adjusted.ID, &CostLinePatch{ConsumptionAdjusted: decp("2.8")})
	require.NoError(t, err)

	// 台账两行都有了新的 confirmed 用量
	_, err = f.consumption.SetStage(f.ctx, adjusted.BOMLineID, entity.MaturityConfirmed, dec("2.2"), "u1")
	require.NoError(t, err)
	_, err = f.consumption.SetStage(f.ctx, untouched.BOMLineID, entity.MaturityConfirmed, dec("3.5"), "u1")
	require.NoError(t, err)

	version, err = f.costing.RefreshSnapshot(f.ctx, version.ID)
	require.NoError(t, err)
	require.Len(t, version.Lines, 2)

	assert.True(t, version.Lines[0].ConsumptionAdjusted.Equal(dec("2.8")), "manually adjusted value survives refresh")
	assert.True(t, version.Lines[0].IsConsumptionAdjusted)
	assert.True(t, version.Lines[1].ConsumptionAdjusted.Equal(dec("3.5")), "untouched sibling picks up the ledger")
	assert.False(t, version.Lines[1].IsConsumptionAdjusted)
}

func TestSubmitGateAndScenarioLock(t *testing.T) {
	f := setupCostingTest(t)
	_, rev := testutil.SeedStyle(t, f.db, "style-gate", "ST-GATE")

	// 10行台账：8行confirmed起步
	var lineIDs []string
	for i := 0; i < 10; i++ {
		line, err := f.consumption.CreateLine(f.ctx, rev.ID, "style-gate", &BOMLineInput{
			MaterialName: fmt.Sprintf("物料-%02d", i), UnitPrice: decp("5"), SortOrder: i + 1,
		}, "u1")
		require.NoError(t, err)
		lineIDs = append(lineIDs, line.ID)
		if i < 8 {
			_, err = f.consumption.SetStage(f.ctx, line.ID, entity.MaturityConfirmed, dec("1"), "u1")
			require.NoError(t, err)
		}
	}

	scenario, err := f.usage.Create(f.ctx, rev.ID, &CreateScenarioInput{Purpose: entity.PurposeSampleQuote}, "u1")
	require.NoError(t, err)

	version, err := f.costing.Create(f.ctx, "style-gate", &CreateCostingInput{
		CostingType:     entity.CostingTypeSample,
		UsageScenarioID: scenario.ID,
	}, "u1")
	require.NoError(t, err)

	// 8/10 = 0.8 < 0.9：拒绝
	_, err = f.costing.Submit(f.ctx, version.ID, "u1")
	var notReady *BomNotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.EqualValues(t, 10, notReady.Total)
	assert.EqualValues(t, 8, notReady.Verified)
	assert.InDelta(t, 0.8, notReady.Ratio, 1e-9)

	// 9/10 = 0.9：恰好达标
	_, err = f.consumption.SetStage(f.ctx, lineIDs[8], entity.MaturityConfirmed, dec("1"), "u1")
	require.NoError(t, err)

	version, err = f.costing.Submit(f.ctx, version.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, entity.CostingSubmitted, version.Status)
	require.NotNil(t, version.SubmittedAt)

	// 提交即锁定引用的用量方案
	locked, err := f.usage.Get(f.ctx, scenario.ID)
	require.NoError(t, err)
	require.True(t, locked.IsLocked())
	assert.Equal(t, version.ID, *locked.LockedByCostingVersionID)

	// 已提交版本不可再提交/再编辑
	_, err = f.costing.Submit(f.ctx, version.ID, "u1")
	assert.ErrorIs(t, err, ErrNotDraft)
	_, err = f.costing.PatchHeader(f.ctx, version.ID, &CostingHeaderPatch{LaborCost: decp("1")})
	assert.ErrorIs(t, err, ErrNotDraft)
}

func TestAcceptRejectTransitions(t *testing.T) {
	f := setupCostingTest(t)
	scenario := f.seedQuoteScenario(t, "style-ar")

	version, err := f.costing.Create(f.ctx, "style-ar", &CreateCostingInput{
		CostingType:     entity.CostingTypeSample,
		UsageScenarioID: scenario.ID,
	}, "u1")
	require.NoError(t, err)

	// 草稿不能直接 accept/reject
	_, err = f.costing.Accept(f.ctx, version.ID)
	assert.ErrorIs(t, err, ErrNotSubmitted)
	_, err = f.costing.Reject(f.ctx, version.ID, "价格偏高")
	assert.ErrorIs(t, err, ErrNotSubmitted)

	_, err = f.costing.Submit(f.ctx, version.ID, "u1")
	require.NoError(t, err)

	version, err = f.costing.Reject(f.ctx, version.ID, "价格偏高")
	require.NoError(t, err)
	assert.Equal(t, entity.CostingRejected, version.Status)
	assert.Equal(t, "价格偏高", version.RejectReason)

	// 终态之后没有任何转移
	_, err = f.costing.Accept(f.ctx, version.ID)
	assert.ErrorIs(t, err, ErrNotSubmitted)
}

func TestCloneCostingVersion(t *testing.T) {
	f := setupCostingTest(t)
	scenario := f.seedQuoteScenario(t, "style-cl")

	source, err := f.costing.Create(f.ctx, "style-cl", &CreateCostingInput{
		CostingType:     entity.CostingTypeSample,
		UsageScenarioID: scenario.ID,
		LaborCost:       dec("10"),
		MarginPct:       dec("20"),
	}, "u1")
	require.NoError(t, err)
	_, err = f.costing.Submit(f.ctx, source.ID, "u1")
	require.NoError(t, err)

	// 已提交的源也可克隆；B类字段在克隆时覆盖
	clone, err := f.costing.Clone(f.ctx, source.ID, &CloneCostingInput{
		MarginPct:    decp("10"),
		ChangeReason: "客户压价重报",
	}, "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, clone.VersionNo)
	assert.Equal(t, entity.CostingDraft, clone.Status)
	assert.Equal(t, source.ID, *clone.CloneOfID)
	assert.True(t, clone.LaborCost.Equal(dec("10")), "A-fields copied")
	// 45 / (1 - 0.10) = 50
	assert.True(t, clone.UnitPrice.Equal(dec("50")))

	// 切换核算类型：进入目标类型自己的序列
	bulk, err := f.costing.Clone(f.ctx, source.ID, &CloneCostingInput{CostingType: entity.CostingTypeBulk}, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, bulk.VersionNo)

	// 源版本不受克隆影响
	got, err := f.costing.Get(f.ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.CostingSubmitted, got.Status)
}

func TestBomReadinessEmptyStyle(t *testing.T) {
	f := setupCostingTest(t)
	readiness := NewReadinessService(f.repos.BOMLine)

	r, err := readiness.BomReadiness(f.ctx, "style-empty")
	require.NoError(t, err)
	assert.EqualValues(t, 0, r.Total)
	assert.Equal(t, 0.0, r.Ratio)
	assert.False(t, r.Ready)
}
