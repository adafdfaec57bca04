package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func main() {
	// Load configuration
	LoadConfig()

	gateway := NewGateway()
	modelsCache := NewModelsCache(ModelsCacheTTL)
	personaStore := NewPersonaStore(PersonasFile)

	router := setupRouter(gateway, modelsCache, personaStore)

	log.Println("Starting LLM Council backend on port 8001...")
	if err := router.Run(":8001"); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupRouter builds the gin engine with all routes. Dependencies are
// passed in explicitly so tests can substitute a stub model client, a
// fresh cache, and a temp persona store.
func setupRouter(client ModelClient, modelsCache *ModelsCache, personas *PersonaStore) *gin.Engine {
	router := gin.Default()

	// Request size limit middleware
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBodySize)
		c.Next()
	})

	// CORS middleware with dynamic origin validation
	router.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			// In production, use environment-configured origins
			if len(CORSAllowedOrigins) > 0 && CORSAllowedOrigins[0] != "" {
				for _, allowedOrigin := range CORSAllowedOrigins {
					if origin == allowedOrigin {
						return true
					}
				}
				return false
			}
			// In development, allow any localhost/127.0.0.1 origin
			return strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1")
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))

	// Routes
	router.GET("/", healthCheck)
	router.GET("/api/config", getConfigHandler(modelsCache))
	router.POST("/api/config/refresh-models", refreshModelsHandler(modelsCache))
	router.GET("/api/personas", listPersonasHandler(personas))
	router.POST("/api/personas", createPersonaHandler(personas))
	router.PUT("/api/personas/:id", updatePersonaHandler(personas))
	router.DELETE("/api/personas/:id", deletePersonaHandler(personas))
	router.GET("/api/conversations", listConversationsHandler)
	router.POST("/api/conversations", createConversationHandler)
	router.GET("/api/conversations/:id", getConversationHandler)
	router.POST("/api/conversations/:id/message", sendMessageHandler(client, personas))
	router.POST("/api/conversations/:id/message/stream", sendMessageStreamHandler(client, personas))
	router.POST("/api/fetch-url", fetchURLHandler)

	return router
}

// healthCheck returns a simple health check response.
// GET / - Returns service status information.
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "LLM Council API",
	})
}

// getConfigHandler returns the council configuration plus the provider
// model listing (served from the cache, fetched on miss).
// GET /api/config
func getConfigHandler(modelsCache *ModelsCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"council_members":  DefaultMembers,
			"council_models":   CouncilModels,
			"chairman_model":   ChairmanModel,
			"providers_models": modelsCache.GetOrFetch(c.Request.Context()),
		})
	}
}

// refreshModelsHandler invalidates the models cache and refetches.
// POST /api/config/refresh-models
func refreshModelsHandler(modelsCache *ModelsCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		modelsCache.Clear()
		models := FetchProviderModels(c.Request.Context())
		modelsCache.Set(models)
		c.JSON(http.StatusOK, gin.H{
			"providers_models": models,
		})
	}
}

// listPersonasHandler lists all personas.
// GET /api/personas
func listPersonasHandler(personas *PersonaStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := personas.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": fmt.Sprintf("Failed to list personas: %v", err),
			})
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// createPersonaHandler creates a new persona.
// POST /api/personas
func createPersonaHandler(personas *PersonaStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request CreatePersonaRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Invalid request: %v", err),
			})
			return
		}

		persona, err := personas.Create(request.Name, request.Prompt, request.Description, request.Model)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": fmt.Sprintf("Failed to create persona: %v", err),
			})
			return
		}
		c.JSON(http.StatusOK, persona)
	}
}

// updatePersonaHandler applies a partial update to a persona.
// PUT /api/personas/:id
func updatePersonaHandler(personas *PersonaStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request UpdatePersonaRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Invalid request: %v", err),
			})
			return
		}

		persona, err := personas.Update(c.Param("id"), request)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": fmt.Sprintf("Failed to update persona: %v", err),
			})
			return
		}
		if persona == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Persona not found"})
			return
		}
		c.JSON(http.StatusOK, persona)
	}
}

// deletePersonaHandler deletes a persona.
// DELETE /api/personas/:id
func deletePersonaHandler(personas *PersonaStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		deleted, err := personas.Delete(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": fmt.Sprintf("Failed to delete persona: %v", err),
			})
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "Persona not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// listConversationsHandler lists all conversations with metadata only.
// GET /api/conversations - Returns array of conversation metadata sorted by date.
func listConversationsHandler(c *gin.Context) {
	conversations, err := ListConversations()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list conversations: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, conversations)
}

// createConversationHandler creates a new conversation.
// POST /api/conversations - Generates a new UUID and creates an empty conversation.
func createConversationHandler(c *gin.Context) {
	conversationID := uuid.New().String()

	conversation, err := CreateConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to create conversation: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// getConversationHandler gets a specific conversation by ID.
// GET /api/conversations/:id - Returns full conversation including all messages.
func getConversationHandler(c *gin.Context) {
	conversationID := c.Param("id")

	conversation, err := GetConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get conversation: %v", err),
		})
		return
	}

	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Conversation not found",
		})
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// resolveCouncil maps selected persona IDs to council members, falling
// back to the configured default council when nothing is selected.
func resolveCouncil(personas *PersonaStore, personaIDs []string) ([]CouncilMember, error) {
	members, err := personas.ResolveMembers(personaIDs)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return DefaultMembers, nil
	}
	return members, nil
}

// sendMessageHandler sends a message and runs the 3-stage council process.
// POST /api/conversations/:id/message - Runs the full council and returns
// all stages at once. Use sendMessageStreamHandler for the SSE version.
func sendMessageHandler(client ModelClient, personas *PersonaStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("id")

		var request SendMessageRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Invalid request: %v", err),
			})
			return
		}

		conversation, err := GetConversation(conversationID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": fmt.Sprintf("Failed to get conversation: %v", err),
			})
			return
		}
		if conversation == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Conversation not found",
			})
			return
		}

		members, err := resolveCouncil(personas, request.PersonaIDs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Invalid council selection: %v", err),
			})
			return
		}

		isFirstMessage := len(conversation.Messages) == 0

		if err := AddUserMessage(conversationID, request.Content, request.Subject); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": fmt.Sprintf("Failed to add user message: %v", err),
			})
			return
		}

		// Generate title if first message (run in background)
		if isFirstMessage {
			go func() {
				title, err := GenerateConversationTitle(context.Background(), client, request.Content)
				if err != nil {
					log.Printf("Failed to generate title: %v", err)
					title = "New Conversation"
				}
				if err := UpdateConversationTitle(conversationID, title); err != nil {
					log.Printf("Failed to update title: %v", err)
				}
			}()
		}

		run := &CouncilRun{
			Client:  client,
			Members: members,
			Query:   request.Content,
			Subject: request.Subject,
			Persist: func(result *RunResult) error {
				return AddAssistantMessage(conversationID, result)
			},
		}

		result, err := run.Run(context.Background(), nil)
		if err != nil {
			var persistErr *PersistenceError
			if errors.As(err, &persistErr) {
				// Computed result still goes back to the client
				c.JSON(http.StatusOK, SendMessageResponse{
					Stage1:           result.Stage1,
					Stage2:           result.Stage2,
					Stage3:           result.Stage3,
					Metadata:         result.Metadata,
					PersistenceError: persistErr.Error(),
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": fmt.Sprintf("Council process failed: %v", err),
			})
			return
		}

		c.JSON(http.StatusOK, SendMessageResponse{
			Stage1:   result.Stage1,
			Stage2:   result.Stage2,
			Stage3:   result.Stage3,
			Metadata: result.Metadata,
		})
	}
}

// sendMessageStreamHandler sends a message and streams the 3-stage council
// process via SSE, one event per pipeline state transition.
// POST /api/conversations/:id/message/stream
// Events: stage_start/stage_result per stage, optional title, error, done.
func sendMessageStreamHandler(client ModelClient, personas *PersonaStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("id")

		var request SendMessageRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Invalid request: %v", err),
			})
			return
		}

		conversation, err := GetConversation(conversationID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": fmt.Sprintf("Failed to get conversation: %v", err),
			})
			return
		}
		if conversation == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Conversation not found",
			})
			return
		}

		members, err := resolveCouncil(personas, request.PersonaIDs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Invalid council selection: %v", err),
			})
			return
		}

		// Set SSE headers
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")

		isFirstMessage := len(conversation.Messages) == 0

		if err := AddUserMessage(conversationID, request.Content, request.Subject); err != nil {
			sendSSEError(c, fmt.Sprintf("Failed to add user message: %v", err))
			return
		}

		// Start title generation in background if first message
		var titleChan chan string
		if isFirstMessage {
			titleChan = make(chan string, 1)
			go func() {
				defer close(titleChan)
				title, err := GenerateConversationTitle(context.Background(), client, request.Content)
				if err != nil {
					log.Printf("Failed to generate title: %v", err)
					UpdateConversationTitle(conversationID, "New Conversation")
					return
				}
				UpdateConversationTitle(conversationID, title)
				titleChan <- title
			}()
		}

		clientCtx := c.Request.Context()

		run := &CouncilRun{
			Client:  client,
			Members: members,
			Query:   request.Content,
			Subject: request.Subject,
			// Model calls of the running stage are left to finish on
			// disconnect; the check below stops the next stage and skips
			// persistence.
			ClientGone: func() bool {
				select {
				case <-clientCtx.Done():
					return true
				default:
					return false
				}
			},
			Persist: func(result *RunResult) error {
				// Flush the title before the done event so the client sees
				// it while the stream is still open.
				if titleChan != nil {
					if title := <-titleChan; title != "" {
						sendSSEEvent(c, Event{Type: EventTitle, Payload: gin.H{"title": title}})
					}
					titleChan = nil
				}
				return AddAssistantMessage(conversationID, result)
			},
		}

		// Stage and error events are emitted by the run itself; model calls
		// run on a background context so a disconnect doesn't kill the
		// in-flight stage.
		_, err = run.Run(context.Background(), func(ev Event) {
			sendSSEEvent(c, ev)
		})
		if err != nil {
			if errors.Is(err, ErrClientGone) {
				log.Printf("Client disconnected mid-run for conversation %s", conversationID)
			}
			// Stage and persistence failures already surfaced as error events
			return
		}
	}
}

// sendSSEEvent sends a Server-Sent Event.
// Marshals data to JSON and writes as SSE format with "data: " prefix.
func sendSSEEvent(c *gin.Context, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("Failed to marshal SSE event: %v", err)
		return
	}
	c.Writer.WriteString(fmt.Sprintf("data: %s\n\n", string(jsonData)))
	c.Writer.Flush()
}

// sendSSEError sends an error event via SSE.
func sendSSEError(c *gin.Context, message string) {
	sendSSEEvent(c, Event{Type: EventError, Payload: errorPayload{Message: message}})
}

// fetchURLHandler fetches a web page and extracts readable text for use as
// subject context in a council run.
// POST /api/fetch-url - Body: {"url": "https://..."}
func fetchURLHandler(c *gin.Context) {
	var request struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	content, err := FetchURLContent(c.Request.Context(), request.URL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to fetch URL content: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"content": content,
	})
}
