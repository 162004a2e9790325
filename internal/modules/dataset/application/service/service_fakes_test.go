package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"OmniBase/internal/modules/dataset/domain/entity"
	"OmniBase/internal/modules/dataset/domain/repository"
	"OmniBase/internal/modules/dataset/infrastructure/mq"
)

// 内存版仓储与向量库假实现，行为对齐 persistence/vectordb 的真实语义：
// 软删除行对 GetByID 不可见、CAS 条件更新、审计记录只关一次。

type fakeDatasetRepo struct {
	mu       sync.Mutex
	nextId   int64
	datasets map[int64]*entity.Dataset
	rules    map[int64]*entity.ProcessRule
	casDeny  bool // 置位后下一次 CAS 失败，模拟并发竞争者抢先改写
}

func newFakeDatasetRepo() *fakeDatasetRepo {
	return &fakeDatasetRepo{
		datasets: make(map[int64]*entity.Dataset),
		rules:    make(map[int64]*entity.ProcessRule),
	}
}

func (f *fakeDatasetRepo) put(ds *entity.Dataset) *entity.Dataset {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ds.Id == 0 {
		f.nextId++
		ds.Id = f.nextId
	}
	cp := *ds
	f.datasets[ds.Id] = &cp
	return ds
}

func (f *fakeDatasetRepo) Create(ctx context.Context, ds *entity.Dataset) error {
	f.put(ds)
	return nil
}

func (f *fakeDatasetRepo) GetByID(ctx context.Context, id int64) (*entity.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ds, ok := f.datasets[id]
	if !ok || ds.Status == entity.CommonStatusDeleted {
		return nil, nil
	}
	cp := *ds
	return &cp, nil
}

func (f *fakeDatasetRepo) CASCollectionRef(ctx context.Context, id int64, expect, next string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.casDeny {
		f.casDeny = false
		return false, nil
	}
	ds, ok := f.datasets[id]
	if !ok || ds.CollectionRef != expect {
		return false, nil
	}
	ds.CollectionRef = next
	return true, nil
}

func (f *fakeDatasetRepo) UpdateEmbeddingConfigId(ctx context.Context, id int64, embeddingConfigId int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ds, ok := f.datasets[id]; ok {
		ds.EmbeddingConfigId = embeddingConfigId
	}
	return nil
}

func (f *fakeDatasetRepo) SoftDelete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ds, ok := f.datasets[id]; ok {
		ds.Status = entity.CommonStatusDeleted
	}
	return nil
}

func (f *fakeDatasetRepo) GetProcessRule(ctx context.Context, id int64) (*entity.ProcessRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rules[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

var _ repository.DatasetRepository = (*fakeDatasetRepo)(nil)

type fakeDocumentRepo struct {
	mu     sync.Mutex
	nextId int64
	docs   map[int64]*entity.Document
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{docs: make(map[int64]*entity.Document)}
}

func (f *fakeDocumentRepo) put(doc *entity.Document) *entity.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc.Id == 0 {
		f.nextId++
		doc.Id = f.nextId
	}
	cp := *doc
	f.docs[doc.Id] = &cp
	return doc
}

func (f *fakeDocumentRepo) get(id int64) *entity.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil
	}
	cp := *doc
	return &cp
}

func (f *fakeDocumentRepo) Create(ctx context.Context, doc *entity.Document) error {
	f.put(doc)
	return nil
}

func (f *fakeDocumentRepo) GetByID(ctx context.Context, id int64) (*entity.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.Status == entity.CommonStatusDeleted {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeDocumentRepo) ListByDataset(ctx context.Context, datasetId int64, statuses []int8) ([]entity.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]entity.Document, 0)
	for _, id := range ids {
		doc := f.docs[id]
		if doc.DatasetId != datasetId {
			continue
		}
		if len(statuses) == 0 {
			if doc.Status == entity.CommonStatusDeleted {
				continue
			}
		} else if !containsStatus(statuses, doc.Status) {
			continue
		}
		out = append(out, *doc)
	}
	return out, nil
}

func (f *fakeDocumentRepo) UpdateStatus(ctx context.Context, id int64, status int8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[id]; ok {
		doc.Status = status
	}
	return nil
}

func (f *fakeDocumentRepo) UpdateIndexingResult(ctx context.Context, id int64, wordCount, tokenCount, latencyMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[id]; ok {
		doc.WordCount = wordCount
		doc.TokenCount = tokenCount
		doc.IndexingLatencyMs = latencyMs
	}
	return nil
}

func (f *fakeDocumentRepo) SoftDeleteByDataset(ctx context.Context, datasetId int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range f.docs {
		if doc.DatasetId == datasetId {
			doc.Status = entity.CommonStatusDeleted
		}
	}
	return nil
}

var _ repository.DocumentRepository = (*fakeDocumentRepo)(nil)

type fakeSegmentRepo struct {
	mu     sync.Mutex
	nextId int64
	order  []int64
	segs   map[int64]*entity.Segment
}

func newFakeSegmentRepo() *fakeSegmentRepo {
	return &fakeSegmentRepo{segs: make(map[int64]*entity.Segment)}
}

func (f *fakeSegmentRepo) put(seg *entity.Segment) *entity.Segment {
	f.mu.Lock()
	defer f.mu.Unlock()
	if seg.Id == 0 {
		f.nextId++
		seg.Id = f.nextId
	} else if seg.Id > f.nextId {
		f.nextId = seg.Id
	}
	if _, ok := f.segs[seg.Id]; !ok {
		f.order = append(f.order, seg.Id)
	}
	cp := *seg
	f.segs[seg.Id] = &cp
	return seg
}

func (f *fakeSegmentRepo) get(id int64) *entity.Segment {
	f.mu.Lock()
	defer f.mu.Unlock()
	seg, ok := f.segs[id]
	if !ok {
		return nil
	}
	cp := *seg
	return &cp
}

func (f *fakeSegmentRepo) Create(ctx context.Context, seg *entity.Segment) error {
	f.put(seg)
	return nil
}

func (f *fakeSegmentRepo) GetByID(ctx context.Context, id int64) (*entity.Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seg, ok := f.segs[id]
	if !ok || seg.Status == entity.CommonStatusDeleted {
		return nil, nil
	}
	cp := *seg
	return &cp, nil
}

func (f *fakeSegmentRepo) list(filter func(*entity.Segment) bool) []entity.Segment {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entity.Segment, 0)
	for _, id := range f.order {
		seg := f.segs[id]
		if filter(seg) {
			out = append(out, *seg)
		}
	}
	return out
}

func (f *fakeSegmentRepo) ListByDocument(ctx context.Context, documentId int64, statuses []int8) ([]entity.Segment, error) {
	return f.list(func(seg *entity.Segment) bool {
		if seg.DocumentId != documentId {
			return false
		}
		if len(statuses) == 0 {
			return seg.Status != entity.CommonStatusDeleted
		}
		return containsStatus(statuses, seg.Status)
	}), nil
}

func (f *fakeSegmentRepo) ListByDataset(ctx context.Context, datasetId int64, statuses []int8) ([]entity.Segment, error) {
	return f.list(func(seg *entity.Segment) bool {
		if seg.DatasetId != datasetId {
			return false
		}
		if len(statuses) == 0 {
			return seg.Status != entity.CommonStatusDeleted
		}
		return containsStatus(statuses, seg.Status)
	}), nil
}

func (f *fakeSegmentRepo) MarkIndexed(ctx context.Context, id int64, indexId string, tokenCount int64, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	seg, ok := f.segs[id]
	if !ok {
		return errors.New("segment not found")
	}
	seg.IndexId = indexId
	seg.TokenCount = tokenCount
	seg.IndexingStatus = entity.IndexingStatusIndexed
	seg.ErrorMsg = ""
	seg.CompletedAt.Time = completedAt
	seg.CompletedAt.Valid = true
	return nil
}

func (f *fakeSegmentRepo) UpdateIndexingStatus(ctx context.Context, id int64, indexingStatus int8, errorMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	seg, ok := f.segs[id]
	if !ok {
		return errors.New("segment not found")
	}
	seg.IndexingStatus = indexingStatus
	seg.ErrorMsg = errorMsg
	return nil
}

func (f *fakeSegmentRepo) UpdateStatus(ctx context.Context, id int64, status int8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if seg, ok := f.segs[id]; ok {
		seg.Status = status
	}
	return nil
}

func (f *fakeSegmentRepo) ResetIndexing(ctx context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if seg, ok := f.segs[id]; ok {
			seg.IndexId = ""
			seg.TokenCount = 0
			seg.IndexingStatus = entity.IndexingStatusNotIndexed
			seg.ErrorMsg = ""
			seg.CompletedAt.Valid = false
		}
	}
	return nil
}

func (f *fakeSegmentRepo) SoftDeleteByDocument(ctx context.Context, documentId int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, seg := range f.segs {
		if seg.DocumentId == documentId {
			seg.Status = entity.CommonStatusDeleted
		}
	}
	return nil
}

func (f *fakeSegmentRepo) SoftDeleteByDataset(ctx context.Context, datasetId int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, seg := range f.segs {
		if seg.DatasetId == datasetId {
			seg.Status = entity.CommonStatusDeleted
		}
	}
	return nil
}

func (f *fakeSegmentRepo) IncrHitCount(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if seg, ok := f.segs[id]; ok {
		seg.HitCount++
	}
	return nil
}

var _ repository.SegmentRepository = (*fakeSegmentRepo)(nil)

func containsStatus(statuses []int8, s int8) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

// closedRecord 一次 CloseRecord 的入参快照
type closedRecord struct {
	status          int8
	elapsedMs       int64
	embeddingTokens int64
	rerankingTokens int64
	errorMsg        string
}

type fakeRetrievalRepo struct {
	mu      sync.Mutex
	nextId  int64
	records map[int64]*entity.RetrievalRecord
	closes  map[int64][]closedRecord
	details []entity.RetrievalDetail
}

func newFakeRetrievalRepo() *fakeRetrievalRepo {
	return &fakeRetrievalRepo{
		records: make(map[int64]*entity.RetrievalRecord),
		closes:  make(map[int64][]closedRecord),
	}
}

func (f *fakeRetrievalRepo) CreateRecord(ctx context.Context, rec *entity.RetrievalRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextId++
	rec.Id = f.nextId
	cp := *rec
	f.records[rec.Id] = &cp
	return nil
}

func (f *fakeRetrievalRepo) CloseRecord(ctx context.Context, id int64, status int8, elapsedMs, embeddingTokens, rerankingTokens int64, errorMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	// 与条件更新一致：只有 running 记录能进入终态
	if !ok || rec.Status != entity.RetrievalStatusRunning {
		return nil
	}
	rec.Status = status
	rec.ElapsedMs = elapsedMs
	rec.EmbeddingTokens = embeddingTokens
	rec.RerankingTokens = rerankingTokens
	rec.ErrorMsg = errorMsg
	f.closes[id] = append(f.closes[id], closedRecord{
		status:          status,
		elapsedMs:       elapsedMs,
		embeddingTokens: embeddingTokens,
		rerankingTokens: rerankingTokens,
		errorMsg:        errorMsg,
	})
	return nil
}

func (f *fakeRetrievalRepo) CreateDetails(ctx context.Context, details []entity.RetrievalDetail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details = append(f.details, details...)
	return nil
}

func (f *fakeRetrievalRepo) singleRecord() *entity.RetrievalRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.records) != 1 {
		return nil
	}
	for _, rec := range f.records {
		cp := *rec
		return &cp
	}
	return nil
}

var _ repository.RetrievalRepository = (*fakeRetrievalRepo)(nil)

type modelPair struct {
	mc  *entity.ModelConfig
	sup *entity.ModelSupplier
}

type fakeModelRepo struct {
	embed          map[int64]modelPair
	rerankByTenant map[string]modelPair
	embedByTenant  map[string]modelPair
}

func newFakeModelRepo() *fakeModelRepo {
	return &fakeModelRepo{
		embed:          make(map[int64]modelPair),
		rerankByTenant: make(map[string]modelPair),
		embedByTenant:  make(map[string]modelPair),
	}
}

func (f *fakeModelRepo) GetEmbeddingConfig(ctx context.Context, configId int64) (*entity.ModelConfig, *entity.ModelSupplier, error) {
	p, ok := f.embed[configId]
	if !ok {
		return nil, nil, nil
	}
	return p.mc, p.sup, nil
}

func (f *fakeModelRepo) GetTenantRerankConfig(ctx context.Context, tenantId string) (*entity.ModelConfig, *entity.ModelSupplier, error) {
	p, ok := f.rerankByTenant[tenantId]
	if !ok {
		return nil, nil, nil
	}
	return p.mc, p.sup, nil
}

func (f *fakeModelRepo) GetTenantEmbeddingConfig(ctx context.Context, tenantId string) (*entity.ModelConfig, *entity.ModelSupplier, error) {
	p, ok := f.embedByTenant[tenantId]
	if !ok {
		return nil, nil, nil
	}
	return p.mc, p.sup, nil
}

var _ repository.ModelConfigRepository = (*fakeModelRepo)(nil)

// fakeVectorStore 内存向量库假实现。addsRemaining >= 0 时表示剩余可成功的
// AddTexts 次数，归零后持续失败，用于模拟供应商中途不可用。
type fakeVectorStore struct {
	mu            sync.Mutex
	seq           int
	items         map[string]repository.TextDocument
	deleted       []string
	addsRemaining int
	tokensPerText int64
	pendingTokens int64
	hits          []repository.SearchHit
	searchErr     error
	searchTokens  int64
	dropSupported bool
	dropped       bool
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{
		items:         make(map[string]repository.TextDocument),
		addsRemaining: -1,
		tokensPerText: 3,
	}
}

func (s *fakeVectorStore) failAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addsRemaining = n
}

func (s *fakeVectorStore) putItem(indexId string, doc repository.TextDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[indexId] = doc
}

func (s *fakeVectorStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *fakeVectorStore) has(indexId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[indexId]
	return ok
}

func (s *fakeVectorStore) AddTexts(ctx context.Context, docs []repository.TextDocument) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addsRemaining == 0 {
		return nil, errors.New("embedding provider unavailable")
	}
	if s.addsRemaining > 0 {
		s.addsRemaining--
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		s.seq++
		id := fmt.Sprintf("vidx-%04d", s.seq)
		s.items[id] = d
		ids = append(ids, id)
	}
	s.pendingTokens += s.tokensPerText * int64(len(docs))
	return ids, nil
}

func (s *fakeVectorStore) DeleteByIDs(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.items, id)
		s.deleted = append(s.deleted, id)
	}
	return nil
}

func (s *fakeVectorStore) DeleteCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dropSupported {
		return repository.ErrDeleteCollectionNotSupported
	}
	s.items = make(map[string]repository.TextDocument)
	s.dropped = true
	return nil
}

func (s *fakeVectorStore) SearchByText(ctx context.Context, query string, topK int, scoreThreshold float64, documentIds []int64) ([]repository.SearchHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingTokens += s.searchTokens
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	out := make([]repository.SearchHit, len(s.hits))
	copy(out, s.hits)
	return out, nil
}

func (s *fakeVectorStore) ConsumeEmbeddingTokens() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.pendingTokens
	s.pendingTokens = 0
	return v
}

var _ repository.VectorStore = (*fakeVectorStore)(nil)

// fakeFactory 按集合标识共享假向量库实例，跨 Open 调用可见同一份数据
type fakeFactory struct {
	mu            sync.Mutex
	stores        map[string]*fakeVectorStore
	build         func(collectionRef string) *fakeVectorStore
	openErr       error
	openedConfigs map[string]int64
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		stores:        make(map[string]*fakeVectorStore),
		openedConfigs: make(map[string]int64),
	}
}

func (f *fakeFactory) store(collectionRef string) *fakeVectorStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stores[collectionRef]
	if !ok {
		if f.build != nil {
			st = f.build(collectionRef)
		} else {
			st = newFakeVectorStore()
		}
		f.stores[collectionRef] = st
	}
	return st
}

func (f *fakeFactory) Open(ctx context.Context, embeddingConfigId int64, collectionRef string) (repository.VectorStore, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	st := f.store(collectionRef)
	f.mu.Lock()
	f.openedConfigs[collectionRef] = embeddingConfigId
	f.mu.Unlock()
	return st, nil
}

var _ repository.VectorStoreFactory = (*fakeFactory)(nil)

// fakeReranker 按预置分数表打分，未命中的分段不返回结果
type fakeReranker struct {
	scores map[int64]float64
	tokens int64
	err    error
}

func (r *fakeReranker) Rerank(ctx context.Context, query string, docs []repository.RerankInput) ([]repository.RerankResult, int64, error) {
	if r.err != nil {
		return nil, r.tokens, r.err
	}
	out := make([]repository.RerankResult, 0, len(docs))
	for _, d := range docs {
		if score, ok := r.scores[d.SegmentId]; ok {
			out = append(out, repository.RerankResult{SegmentId: d.SegmentId, RelevanceScore: score})
		}
	}
	return out, r.tokens, nil
}

var _ repository.Reranker = (*fakeReranker)(nil)

// fakePublisher 记录投递的消息，供异步分发断言
type fakePublisher struct {
	mu       sync.Mutex
	messages []mq.Message
}

func (p *fakePublisher) Publish(ctx context.Context, msg mq.Message) (mq.PublishResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return mq.PublishResult{Partition: 0, Offset: int64(len(p.messages) - 1)}, nil
}

func (p *fakePublisher) Close() error { return nil }

var _ mq.Publisher = (*fakePublisher)(nil)
