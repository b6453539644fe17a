package service

import (
	"context"
	"sync"
	"testing"

	"github.com/bitfantasy/atelier/internal/plm/entity"
	"github.com/bitfantasy/atelier/internal/plm/repository"
	"github.com/bitfantasy/atelier/internal/plm/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupUsageTest(t *testing.T) (context.Context, *gorm.DB, *repository.Repositories, *UsageService, *ConsumptionService) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	return context.Background(), db, repos,
		NewUsageService(repos.Usage, repos.BOMLine, repos.Style),
		NewConsumptionService(repos.BOMLine)
}

func TestScenarioVersionSequencePerPurpose(t *testing.T) {
	ctx, db, _, svc, _ := setupUsageTest(t)
	_, rev := testutil.SeedStyle(t, db, "style-seq", "ST-SEQ")

	s1, err := svc.Create(ctx, rev.ID, &CreateScenarioInput{Purpose: entity.PurposeSampleQuote}, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, s1.VersionNo)

	s2, err := svc.Create(ctx, rev.ID, &CreateScenarioInput{Purpose: entity.PurposeSampleQuote}, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, s2.VersionNo)

	// 不同用途各自独立计数
	b1, err := svc.Create(ctx, rev.ID, &CreateScenarioInput{Purpose: entity.PurposeBulkQuote}, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, b1.VersionNo)
}

func TestScenarioVersionAllocationUnderConcurrency(t *testing.T) {
	ctx, db, _, svc, _ := setupUsageTest(t)
	_, rev := testutil.SeedStyle(t, db, "style-conc", "ST-CONC")

	// 同一 (revision, purpose) 上并发创建，含空范围的首创竞争
	const workers = 5
	var wg sync.WaitGroup
	versions := make(chan int, workers)
	failures := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := svc.Create(ctx, rev.ID, &CreateScenarioInput{Purpose: entity.PurposeSampleQuote}, "u1")
			if err != nil {
				failures <- err
				return
			}
			versions <- s.VersionNo
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
	// 版本号恰为 1..N，无重复无空洞
	for v := 1; v <= workers; v++ {
		assert.True(t, seen[v], "missing version %d", v)
	}
}

func TestScenarioSnapshotFromLedger(t *testing.T) {
	ctx, db, _, svc, consumption := setupUsageTest(t)
	_, rev := testutil.SeedStyle(t, db, "style-snap", "ST-SNAP")

	confirmed, err := consumption.CreateLine(ctx, rev.ID, "style-snap", &BOMLineInput{MaterialName: "主面料", SortOrder: 1}, "u1")
	require.NoError(t, err)
	_, err = consumption.SetStage(ctx, confirmed.ID, entity.MaturityConfirmed, dec("2.0"), "u1")
	require.NoError(t, err)

	// 尚无任何阶段值的行
	_, err = consumption.CreateLine(ctx, rev.ID, "style-snap", &BOMLineInput{MaterialName: "里布", SortOrder: 2}, "u1")
	require.NoError(t, err)

	scenario, err := svc.Create(ctx, rev.ID, &CreateScenarioInput{Purpose: entity.PurposeSampleQuote, WastagePct: dec("5")}, "u1")
	require.NoError(t, err)
	require.Len(t, scenario.Lines, 2)

	assert.True(t, scenario.Lines[0].Consumption.Equal(dec("2.0")))
	assert.Equal(t, entity.UsageLineConfirmed, scenario.Lines[0].Status)

	// 无值行以0纳入，estimated 状态
	assert.True(t, scenario.Lines[1].Consumption.IsZero())
	assert.Equal(t, entity.UsageLineEstimated, scenario.Lines[1].Status)
}

func TestScenarioRejectsInvalidInput(t *testing.T) {
	ctx, db, _, svc, _ := setupUsageTest(t)
	_, rev := testutil.SeedStyle(t, db, "style-val", "ST-VAL")

	var ve *ValidationError
	_, err := svc.Create(ctx, rev.ID, &CreateScenarioInput{Purpose: "fitting"}, "u1")
	assert.ErrorAs(t, err, &ve)

	_, err = svc.Create(ctx, rev.ID, &CreateScenarioInput{Purpose: entity.PurposeSampleQuote, WastagePct: dec("101")}, "u1")
	assert.ErrorAs(t, err, &ve)

	// 显式给行时行状态同样受枚举约束
	_, err = svc.Create(ctx, rev.ID, &CreateScenarioInput{
		Purpose: entity.PurposeSampleQuote,
		Lines:   []ScenarioLineInput{{BOMLineID: "bom-x", Consumption: dec("1"), Status: "locked"}},
	}, "u1")
	assert.ErrorAs(t, err, &ve)
}

func TestCloneScenario(t *testing.T) {
	ctx, db, _, svc, consumption := setupUsageTest(t)
	_, rev := testutil.SeedStyle(t, db, "style-clone", "ST-CLONE")

	line, err := consumption.CreateLine(ctx, rev.ID, "style-clone", &BOMLineInput{MaterialName: "主面料"}, "u1")
	require.NoError(t, err)
	_, err = consumption.SetStage(ctx, line.ID, entity.MaturitySample, dec("1.5"), "u1")
	require.NoError(t, err)

	source, err := svc.Create(ctx, rev.ID, &CreateScenarioInput{Purpose: entity.PurposeSampleQuote, WastagePct: dec("3")}, "u1")
	require.NoError(t, err)

	// 同用途克隆：继续本序列
	clone, err := svc.Clone(ctx, source.ID, &CloneScenarioInput{WastagePct: decp("8")}, "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, clone.VersionNo)
	assert.Equal(t, source.ID, *clone.ClonedFromID)
	assert.True(t, clone.WastagePct.Equal(dec("8")))
	require.Len(t, clone.Lines, 1)
	assert.True(t, clone.Lines[0].Consumption.Equal(dec("1.5")))

	// 切换用途：进入目标用途自己的序列
	bulk, err := svc.Clone(ctx, source.ID, &CloneScenarioInput{Purpose: entity.PurposeBulkQuote}, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, bulk.VersionNo)
}

func TestLockOnFirstReferenceIdempotent(t *testing.T) {
	ctx, db, repos, svc, _ := setupUsageTest(t)
	_, rev := testutil.SeedStyle(t, db, "style-lock", "ST-LOCK")

	scenario, err := svc.Create(ctx, rev.ID, &CreateScenarioInput{Purpose: entity.PurposeSampleQuote}, "u1")
	require.NoError(t, err)

	require.NoError(t, svc.LockOnFirstReference(ctx, scenario.ID, "cost-001"))
	// 第二个引用者：无操作成功，首写胜出
	require.NoError(t, svc.LockOnFirstReference(ctx, scenario.ID, "cost-002"))

	got, err := repos.Usage.FindByID(ctx, scenario.ID)
	require.NoError(t, err)
	require.True(t, got.IsLocked())
	assert.Equal(t, "cost-001", *got.LockedByCostingVersionID)
}

func TestUpdateLineOnLockedScenarioFails(t *testing.T) {
	ctx, db, _, svc, consumption := setupUsageTest(t)
	_, rev := testutil.SeedStyle(t, db, "style-ul", "ST-UL")

	line, err := consumption.CreateLine(ctx, rev.ID, "style-ul", &BOMLineInput{MaterialName: "主面料"}, "u1")
	require.NoError(t, err)
	_, err = consumption.SetStage(ctx, line.ID, entity.MaturitySample, dec("1.0"), "u1")
	require.NoError(t, err)

	scenario, err := svc.Create(ctx, rev.ID, &CreateScenarioInput{Purpose: entity.PurposeSampleQuote}, "u1")
	require.NoError(t, err)
	require.Len(t, scenario.Lines, 1)

	// 锁定前可编辑
	updated, err := svc.UpdateLine(ctx, scenario.Lines[0].ID, &UsageLinePatch{Consumption: decp("1.3")}, "u1")
	require.NoError(t, err)
	assert.True(t, updated.Consumption.Equal(dec("1.3")))

	require.NoError(t, svc.LockOnFirstReference(ctx, scenario.ID, "cost-001"))

	_, err = svc.UpdateLine(ctx, scenario.Lines[0].ID, &UsageLinePatch{Consumption: decp("1.4")}, "u1")
	assert.ErrorIs(t, err, ErrAlreadyLocked)
}
