package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxelight/internal/auth"
	"github.com/annel0/voxelight/internal/engine"
	"github.com/annel0/voxelight/internal/storage"
	"github.com/annel0/voxelight/internal/vec"
	"github.com/annel0/voxelight/internal/world"
	"github.com/annel0/voxelight/internal/world/block"
)

// DefaultReach - дальность луча, если в запросе она не указана
const DefaultReach = 10

// ErrReachTooFar возвращается, если запрошенная дальность луча больше диагонали мира
var ErrReachTooFar = errors.New("reach exceeds world diagonal")

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse представляет ответ на вход
type LoginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	Message   string `json:"message"`
	ExpiresIn int64  `json:"expires_in,omitempty"` // Секунды
	IsAdmin   bool   `json:"is_admin,omitempty"`
}

// VoxelRequest - запись блока по координатам
type VoxelRequest struct {
	X  int `json:"x"`
	Y  int `json:"y"`
	Z  int `json:"z"`
	ID int `json:"id"`
}

// RaycastRequest - луч в мировых координатах
type RaycastRequest struct {
	Origin      mgl32.Vec3 `json:"origin"`
	Direction   mgl32.Vec3 `json:"direction"`
	MaxDistance float32    `json:"max_distance"` // 0 - DefaultReach
	ID          int        `json:"id"`           // Только для /raycast/place
}

// RaycastResponse описывает результат трассировки
type RaycastResponse struct {
	Hit    bool       `json:"hit"`
	ID     uint8      `json:"id"`
	Block  string     `json:"block,omitempty"`
	Pos    vec.Vec3   `json:"pos"`
	End    mgl32.Vec3 `json:"end"`
	Normal mgl32.Vec3 `json:"normal"`
}

// LoadRequest выбирает снимок; пустой id - последний снимок мира
type LoadRequest struct {
	ID string `json:"id"`
}

// statusFor отображает доменные ошибки на HTTP-статусы
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnknownBlock),
		errors.Is(err, engine.ErrOutOfBounds),
		errors.Is(err, engine.ErrDimsMismatch),
		errors.Is(err, storage.ErrSizeMismatch),
		errors.Is(err, storage.ErrInvalidWorldName),
		errors.Is(err, world.ErrBufferSize),
		errors.Is(err, ErrInvalidWebhook),
		errors.Is(err, ErrReachTooFar):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrOperatorNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, engine.ErrNoTarget),
		errors.Is(err, storage.ErrSnapshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrOccupied):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail отвечает ошибкой; 5xx пишутся в лог
func (rs *RestServer) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		rs.logger.Error("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, GenericResponse{Success: false, Message: err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: message})
}

func ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: message, Data: data})
}

// queryCoords читает целые x, y, z из строки запроса
func queryCoords(c *gin.Context) (x, y, z int, err error) {
	values := [3]int{}
	for i, name := range [3]string{"x", "y", "z"} {
		raw, present := c.GetQuery(name)
		if !present {
			return 0, 0, 0, fmt.Errorf("не указан параметр %s", name)
		}
		values[i], err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("параметр %s должен быть целым: %q", name, raw)
		}
	}
	return values[0], values[1], values[2], nil
}

func blockID(id int) (block.BlockID, error) {
	if id < 0 || id >= block.MaxBlocks {
		return 0, fmt.Errorf("%w: %d", engine.ErrUnknownBlock, id)
	}
	return block.BlockID(id), nil
}

// reach возвращает дальность луча запроса, не превышающую диагональ мира
func (rs *RestServer) reach(req RaycastRequest) (float32, error) {
	limit := rs.engine.MaxReach()
	switch {
	case req.MaxDistance <= 0:
		return min(DefaultReach, limit), nil
	case req.MaxDistance > limit:
		return 0, fmt.Errorf("%w: max_distance %.1f больше диагонали мира %.1f", ErrReachTooFar, req.MaxDistance, limit)
	}
	return req.MaxDistance, nil
}

// === Аутентификация ===

// handleLogin обменивает имя и пароль оператора на JWT
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	op, err := rs.operators.ValidateCredentials(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, LoginResponse{
			Success: false,
			Message: "Неверное имя пользователя или пароль",
		})
		return
	}

	token, err := rs.tokens.Issue(op)
	if err != nil {
		rs.fail(c, err)
		return
	}

	rs.logger.Info("🔑 Оператор %s вошёл в систему", op.Name)
	c.JSON(http.StatusOK, LoginResponse{
		Success:   true,
		Token:     token,
		Message:   "Вход выполнен",
		ExpiresIn: int64(rs.tokens.TTL().Seconds()),
		IsAdmin:   op.IsAdmin,
	})
}

// === Информация ===

// handleServerInfo возвращает информацию о сервере
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	clients := 0
	if rs.hub != nil {
		clients = rs.hub.ClientCount()
	}

	ok(c, "Информация о сервере", gin.H{
		"version": Version,
		"name":    "voxelight",
		"status":  "running",
		"world":   rs.engine.Name(),
		"clients": clients,
		"process": rs.metrics.Collect(),
	})
}

func (rs *RestServer) handleWorldInfo(c *gin.Context) {
	ok(c, "Информация о мире", rs.engine.Info())
}

func (rs *RestServer) handleBlocks(c *gin.Context) {
	ok(c, "Каталог блоков", rs.engine.Catalog().Definitions())
}

// === Чтение мира ===

func (rs *RestServer) handleGetVoxel(c *gin.Context) {
	x, y, z, err := queryCoords(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	id, inside := rs.engine.Voxel(x, y, z)
	if !inside {
		rs.fail(c, fmt.Errorf("%w: (%d, %d, %d)", engine.ErrOutOfBounds, x, y, z))
		return
	}

	def, _ := rs.engine.Catalog().Get(id)
	ok(c, "Воксель", gin.H{
		"pos":   vec.Vec3{X: x, Y: y, Z: z},
		"id":    id,
		"block": def.Name,
	})
}

func (rs *RestServer) handleGetLight(c *gin.Context) {
	x, y, z, err := queryCoords(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	sample, inside := rs.engine.Light(x, y, z)
	if !inside {
		rs.fail(c, fmt.Errorf("%w: (%d, %d, %d)", engine.ErrOutOfBounds, x, y, z))
		return
	}
	ok(c, "Освещённость", sample)
}

func (rs *RestServer) handleRaycast(c *gin.Context) {
	var req RaycastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}

	reach, err := rs.reach(req)
	if err != nil {
		rs.fail(c, err)
		return
	}

	hit, found := rs.engine.Pick(req.Origin, req.Direction, reach)
	resp := RaycastResponse{
		Hit:    found,
		Pos:    hit.Pos,
		End:    hit.End,
		Normal: hit.Normal,
	}
	if found {
		resp.ID = uint8(hit.Voxel.ID)
		if def, exists := rs.engine.Catalog().Get(hit.Voxel.ID); exists {
			resp.Block = def.Name
		}
	}
	ok(c, "Трассировка выполнена", resp)
}

func (rs *RestServer) handleGetChunk(c *gin.Context) {
	var coords [3]int
	for i, name := range [3]string{"cx", "cy", "cz"} {
		v, err := strconv.Atoi(c.Param(name))
		if err != nil {
			badRequest(c, fmt.Sprintf("координата чанка %s должна быть целой", name))
			return
		}
		coords[i] = v
	}

	data, exists := rs.engine.ChunkData(coords[0], coords[1], coords[2])
	if !exists {
		rs.fail(c, fmt.Errorf("%w: чанк (%d, %d, %d)", engine.ErrOutOfBounds, coords[0], coords[1], coords[2]))
		return
	}
	ok(c, "Чанк", data)
}

// === Изменение мира ===

func (rs *RestServer) bindVoxel(c *gin.Context) (VoxelRequest, block.BlockID, bool) {
	var req VoxelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return req, 0, false
	}
	id, err := blockID(req.ID)
	if err != nil {
		rs.fail(c, err)
		return req, 0, false
	}
	return req, id, true
}

func (rs *RestServer) respondChange(c *gin.Context, change engine.Change, err error) {
	if err != nil {
		rs.fail(c, err)
		return
	}
	if change.Changed {
		rs.logger.Debug("✏️ %s: (%d, %d, %d) %d → %d", operatorName(c), change.Pos.X, change.Pos.Y, change.Pos.Z, change.Prev, change.ID)
	}
	ok(c, "Мир обновлён", change)
}

func (rs *RestServer) handleSetVoxel(c *gin.Context) {
	req, id, valid := rs.bindVoxel(c)
	if !valid {
		return
	}
	change, err := rs.engine.Set(c.Request.Context(), req.X, req.Y, req.Z, id)
	rs.respondChange(c, change, err)
}

func (rs *RestServer) handlePlaceVoxel(c *gin.Context) {
	req, id, valid := rs.bindVoxel(c)
	if !valid {
		return
	}
	change, err := rs.engine.Place(c.Request.Context(), req.X, req.Y, req.Z, id)
	rs.respondChange(c, change, err)
}

func (rs *RestServer) handleBreakVoxel(c *gin.Context) {
	x, y, z, err := queryCoords(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	change, err := rs.engine.Break(c.Request.Context(), x, y, z)
	rs.respondChange(c, change, err)
}

func (rs *RestServer) handleRaycastPlace(c *gin.Context) {
	var req RaycastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}
	id, err := blockID(req.ID)
	if err != nil {
		rs.fail(c, err)
		return
	}
	reach, err := rs.reach(req)
	if err != nil {
		rs.fail(c, err)
		return
	}
	change, err := rs.engine.PlaceAgainst(c.Request.Context(), req.Origin, req.Direction, reach, id)
	rs.respondChange(c, change, err)
}

func (rs *RestServer) handleRaycastBreak(c *gin.Context) {
	var req RaycastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}
	reach, err := rs.reach(req)
	if err != nil {
		rs.fail(c, err)
		return
	}
	change, err := rs.engine.BreakTarget(c.Request.Context(), req.Origin, req.Direction, reach)
	rs.respondChange(c, change, err)
}

// handleDrainModified выдаёт изменённые чанки, включая уже разосланные по шине
func (rs *RestServer) handleDrainModified(c *gin.Context) {
	chunks := rs.engine.DrainModified(c.Request.Context())
	if chunks == nil {
		chunks = []vec.Vec3{}
	}
	ok(c, "Изменённые чанки", gin.H{"chunks": chunks, "total": len(chunks)})
}

func (rs *RestServer) handleRelight(c *gin.Context) {
	rs.engine.Recalculate(c.Request.Context())
	rs.logger.Info("💡 Освещение пересчитано по запросу %s", operatorName(c))
	ok(c, "Освещение пересчитано", nil)
}

// === Снимки ===

func (rs *RestServer) requireRepo(c *gin.Context) bool {
	if rs.repo == nil {
		rs.fail(c, storage.ErrNotReady)
		return false
	}
	return true
}

func (rs *RestServer) requireFiles(c *gin.Context) bool {
	if rs.files == nil || rs.worldFile == "" {
		rs.fail(c, storage.ErrNotReady)
		return false
	}
	return true
}

func (rs *RestServer) handleSaveWorld(c *gin.Context) {
	if !rs.requireRepo(c) {
		return
	}
	meta, err := rs.engine.Save(c.Request.Context(), rs.repo)
	if err != nil {
		rs.fail(c, err)
		return
	}
	ok(c, "Снимок сохранён", meta)
}

func (rs *RestServer) handleSaveWorldFile(c *gin.Context) {
	if !rs.requireFiles(c) {
		return
	}
	if err := rs.engine.SaveFile(rs.files, rs.worldFile); err != nil {
		rs.fail(c, err)
		return
	}
	ok(c, "Мир записан в файл", gin.H{"path": rs.files.Path(rs.worldFile)})
}

func (rs *RestServer) handleLoadWorld(c *gin.Context) {
	if !rs.requireRepo(c) {
		return
	}
	var req LoadRequest
	// Пустое тело допустимо: загружается последний снимок
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Неверный формат запроса: "+err.Error())
			return
		}
	}

	meta, err := rs.engine.Load(c.Request.Context(), rs.repo, req.ID)
	if err != nil {
		rs.fail(c, err)
		return
	}
	rs.logger.Info("📂 Оператор %s загрузил снимок %s", operatorName(c), meta.ID)
	ok(c, "Снимок загружен", meta)
}

func (rs *RestServer) handleLoadWorldFile(c *gin.Context) {
	if !rs.requireFiles(c) {
		return
	}
	if err := rs.engine.LoadFile(c.Request.Context(), rs.files, rs.worldFile); err != nil {
		rs.fail(c, err)
		return
	}
	ok(c, "Мир прочитан из файла", nil)
}

func (rs *RestServer) handleListSnapshots(c *gin.Context) {
	if !rs.requireRepo(c) {
		return
	}
	metas, err := rs.repo.List(c.Request.Context(), rs.engine.Name())
	if err != nil {
		rs.fail(c, err)
		return
	}
	if metas == nil {
		metas = []storage.SnapshotMeta{}
	}
	ok(c, "Список снимков", gin.H{"snapshots": metas, "total": len(metas)})
}

func (rs *RestServer) handleDeleteSnapshot(c *gin.Context) {
	if !rs.requireRepo(c) {
		return
	}
	id := c.Param("id")
	if err := rs.repo.Delete(c.Request.Context(), id); err != nil {
		rs.fail(c, err)
		return
	}
	rs.logger.Info("🗑️ Оператор %s удалил снимок %s", operatorName(c), id)
	ok(c, "Снимок удалён", nil)
}

// === Исходящие webhook'и ===

func (rs *RestServer) handleGetWebhookEventTypes(c *gin.Context) {
	types := EventTypes()
	ok(c, "Типы событий получены", gin.H{"event_types": types, "total": len(types)})
}

func (rs *RestServer) handleGetOutboundWebhooks(c *gin.Context) {
	webhooks := rs.webhooks.GetWebhooks()
	ok(c, "Список webhook'ов получен", gin.H{"webhooks": webhooks, "total": len(webhooks)})
}

func (rs *RestServer) handleCreateOutboundWebhook(c *gin.Context) {
	var req OutboundWebhook
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Неверный формат запроса: "+err.Error())
		return
	}

	webhook, err := rs.webhooks.AddWebhook(req)
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Webhook создан успешно",
		Data:    webhook,
	})
}

func (rs *RestServer) handleDeleteOutboundWebhook(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "Неверный ID webhook'а")
		return
	}

	if !rs.webhooks.DeleteWebhook(id) {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Webhook не найден",
		})
		return
	}
	ok(c, "Webhook удален успешно", nil)
}
