// Package relay 提供了一個即時多人存在感中繼服務器。
//
// 客戶端經由持久的 WebSocket 通道連接，加入具名房間，廣播
// 位置/朝向更新，並交換以房間為範圍的聊天訊息。包含以下核心：
//
// 房間狀態多路復用
//
// 追蹤哪些連接屬於哪個房間，向房間所有成員扇出狀態與聊天
// 事件，並在斷線時回收狀態：
//   - 單一房間模型：一個連接同一時刻最多屬於一個房間
//   - 換房是原子的「離開舊房再加入新房」
//   - 空房間與其聊天記錄同步銷毀，沒有寬限期
//   - 加入/離開由系統訊息公告
//
// # 事件協議
//
// 線路格式是 {"event": 名稱, "data": 載荷} 的 JSON 信封：
//   - 入站：joinRoom、move、sendMessage（斷線由傳輸層產生）
//   - 出站：chatHistory、roomJoined、updatePlayers、newMessage
//
// 狀態廣播一律是完整成員快照而非增量 —— 以帶寬換取客戶端
// 一致性，消除亂序增量與部分狀態的整類校正問題。
//
// 併發模型
//
// 所有事件處理器經單一互斥鎖串行化，每個事件（含全部廣播
// 扇出）處理到完成才輪到下一個；投遞是射後不理，經緩衝
// channel 異步發送，慢客戶端不拖累處理器。
//
// 使用範例
//
// 啟動服務器：
//
//	store := internal.NewStore()
//	registry := internal.NewRegistry()
//	hub := internal.NewHub(logger)
//	dispatcher := internal.NewDispatcher(store, registry, hub, logger)
//	hub.Bind(dispatcher)
//
//	http.HandleFunc("/ws", hub.ServeWS)
//	log.Fatal(http.ListenAndServe(":4000", nil))
//
// 診斷介面
//
// 唯讀的 HTTP 旁路，不屬於協議狀態機：
//   - GET /：靜態狀態字串
//   - GET /rooms：房間列表與成員數
//   - GET /health：健康檢查
//
// 配置選項
//
// 監聽端口取自 PORT 環境變數（預設 4000），另支援：
//   - -port：覆寫監聽端口
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
//
// 範圍之外
//
// 重啟後的持久化、身份驗證、移動驗證、跨進程分片，以及
// 盡力而為的記憶體內扇出以外的投遞保證，都不在本服務範圍。
package relay
