package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/weblab-class/pomo-dungeon/apperror"
	"github.com/weblab-class/pomo-dungeon/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TaskHandler stores per-user task documents. Tasks are opaque JSON
// blobs keyed by their "id" field; the server merges rather than
// replaces so partial updates from the client do not drop fields.
type TaskHandler struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(db *gorm.DB, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{db: db, logger: logger}
}

// List handles GET /api/tasks/:userId.
func (h *TaskHandler) List(c *gin.Context) {
	userID := model.NormalizeUserID(c.Param("userId"))
	if userID == "" {
		respondError(c, apperror.InvalidRequest("userId required"))
		return
	}
	tasks, err := h.loadTasks(userID)
	if err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// Upsert handles POST /api/tasks/upsert.
func (h *TaskHandler) Upsert(c *gin.Context) {
	var req struct {
		UserID string                 `json:"userId"`
		Task   map[string]interface{} `json:"task"`
	}
	_ = c.ShouldBindJSON(&req)

	userID := model.NormalizeUserID(req.UserID)
	taskID := taskIDOf(req.Task)
	if userID == "" || taskID == "" {
		respondError(c, apperror.InvalidRequest("userId and task required"))
		return
	}

	var rec model.TaskRecord
	err := h.db.Where("user_id = ? AND task_id = ?", userID, taskID).First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		data, _ := json.Marshal(req.Task)
		rec = model.TaskRecord{UserID: userID, TaskID: taskID, Data: datatypes.JSON(data)}
		err = h.db.Create(&rec).Error
	case err == nil:
		// Merge the incoming fields over the stored document.
		merged := map[string]interface{}{}
		_ = json.Unmarshal(rec.Data, &merged)
		for k, v := range req.Task {
			merged[k] = v
		}
		data, _ := json.Marshal(merged)
		rec.Data = datatypes.JSON(data)
		err = h.db.Save(&rec).Error
	}
	if err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}

	tasks, err := h.loadTasks(userID)
	if err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// Delete handles POST /api/tasks/delete.
func (h *TaskHandler) Delete(c *gin.Context) {
	var req struct {
		UserID string      `json:"userId"`
		TaskID interface{} `json:"taskId"`
	}
	_ = c.ShouldBindJSON(&req)

	userID := model.NormalizeUserID(req.UserID)
	taskID := idString(req.TaskID)
	if userID == "" || taskID == "" {
		respondError(c, apperror.InvalidRequest("userId and taskId required"))
		return
	}

	if err := h.db.Where("user_id = ? AND task_id = ?", userID, taskID).
		Delete(&model.TaskRecord{}).Error; err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}

	tasks, err := h.loadTasks(userID)
	if err != nil {
		respondError(c, apperror.Unavailable(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *TaskHandler) loadTasks(userID string) ([]datatypes.JSON, error) {
	var recs []model.TaskRecord
	err := h.db.Where("user_id = ?", userID).Order("updated_at ASC").Find(&recs).Error
	if err != nil {
		return nil, err
	}
	tasks := make([]datatypes.JSON, 0, len(recs))
	for _, r := range recs {
		tasks = append(tasks, r.Data)
	}
	return tasks, nil
}

// taskIDOf pulls the "id" field out of a task document.
func taskIDOf(task map[string]interface{}) string {
	if task == nil {
		return ""
	}
	return idString(task["id"])
}

// idString renders a client-supplied id, which may arrive as a JSON
// string or number, as its canonical string form.
func idString(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}
